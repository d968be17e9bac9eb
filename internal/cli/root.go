package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Durable debate orchestration between two agent CLIs",
	Long: `parley drives a structured proposer/critic debate between two external
agent CLIs until the critic declares consensus or the round budget runs
out.

All session state lives in plain files under the debate directory, so a
run can be interrupted or killed at any point and picked up exactly
where it stopped with 'parley resume'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Add subcommands
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(exportCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Path to parley.json config file (default: search up directory tree)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
