package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Output modes for configured agents. A stdout agent answers on its
// standard output; a file agent is handed an output path via -o and
// writes its answer there.
const (
	OutputStdout = "stdout"
	OutputFile   = "file"
)

// Config represents the parley.json configuration file
type Config struct {
	Version       string                 `json:"version"`
	DebateDir     string                 `json:"debate_dir"`
	MaxRounds     int                    `json:"max_rounds"`
	PollIntervalS int                    `json:"poll_interval_s"`
	AgentTimeoutS int                    `json:"agent_timeout_s"`
	Roles         Roles                  `json:"roles"`
	Agents        map[string]AgentConfig `json:"agents"`
}

// Roles assigns an agent kind to each debate seat
type Roles struct {
	Proposer string `json:"proposer"`
	Critic   string `json:"critic"`
}

// AgentConfig describes how to invoke one agent CLI
type AgentConfig struct {
	Cmd    []string          `json:"cmd"`
	Output string            `json:"output"`
	Env    map[string]string `json:"env,omitempty"`
}

// GenerateDefault creates a new Config with default values: a claude
// proposer answering on stdout and a codex critic answering through an
// output file, ten rounds, a ten-minute agent timeout.
func GenerateDefault() *Config {
	return &Config{
		Version:       "1",
		DebateDir:     "./debate",
		MaxRounds:     10,
		PollIntervalS: 2,
		AgentTimeoutS: 600,
		Roles: Roles{
			Proposer: "claude",
			Critic:   "codex",
		},
		Agents: map[string]AgentConfig{
			"claude": {
				Cmd:    []string{"claude", "-p", "--dangerously-skip-permissions"},
				Output: OutputStdout,
			},
			"codex": {
				Cmd:    []string{"codex", "exec", "--dangerously-bypass-approvals-and-sandbox"},
				Output: OutputFile,
			},
		},
	}
}

// Validate checks the configuration for errors and returns user-friendly error messages
func (c *Config) Validate() error {
	// Version is required
	if c.Version == "" {
		return fmt.Errorf("configuration error: missing required field 'version'\n\nHint: Add a version field like:\n  \"version\": \"1\"")
	}

	if c.DebateDir == "" {
		return fmt.Errorf("configuration error: missing required field 'debate_dir'\n\nHint: Point it at the session directory:\n  \"debate_dir\": \"./debate\"")
	}

	if c.MaxRounds < 1 {
		return fmt.Errorf("configuration error: invalid 'max_rounds' value: %d\n\nHint: The round budget must be at least 1:\n  \"max_rounds\": 10", c.MaxRounds)
	}

	if c.PollIntervalS < 1 {
		return fmt.Errorf("configuration error: invalid 'poll_interval_s' value: %d\n\nHint: The poll interval must be at least 1 second:\n  \"poll_interval_s\": 2", c.PollIntervalS)
	}

	if c.AgentTimeoutS < 1 {
		return fmt.Errorf("configuration error: invalid 'agent_timeout_s' value: %d\n\nHint: The agent timeout must be at least 1 second:\n  \"agent_timeout_s\": 600", c.AgentTimeoutS)
	}

	// Both seats must be filled and must reference defined agents
	if c.Roles.Proposer == "" {
		return fmt.Errorf("configuration error: missing required role 'proposer'\n\nHint: Assign an agent to the seat:\n  \"roles\": {\n    \"proposer\": \"claude\",\n    \"critic\": \"codex\"\n  }")
	}

	if c.Roles.Critic == "" {
		return fmt.Errorf("configuration error: missing required role 'critic'\n\nHint: Assign an agent to the seat:\n  \"roles\": {\n    \"proposer\": \"claude\",\n    \"critic\": \"codex\"\n  }")
	}

	if _, ok := c.Agents[c.Roles.Proposer]; !ok {
		return fmt.Errorf("configuration error: role 'proposer' references unknown agent '%s'\n\nHint: Define the agent under \"agents\" or assign a defined one", c.Roles.Proposer)
	}

	if _, ok := c.Agents[c.Roles.Critic]; !ok {
		return fmt.Errorf("configuration error: role 'critic' references unknown agent '%s'\n\nHint: Define the agent under \"agents\" or assign a defined one", c.Roles.Critic)
	}

	// Validate each agent config
	for name, agent := range c.Agents {
		if err := agent.Validate(name); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks an agent configuration for errors
func (a *AgentConfig) Validate(agentName string) error {
	if len(a.Cmd) == 0 {
		return fmt.Errorf("configuration error: agent '%s' has empty 'cmd' field\n\nHint: Specify the command to run the agent:\n  \"cmd\": [\"claude\", \"-p\", \"--dangerously-skip-permissions\"]", agentName)
	}

	if a.Output != OutputStdout && a.Output != OutputFile {
		return fmt.Errorf("configuration error: agent '%s' has invalid 'output' value: %q\n\nHint: Use \"stdout\" for agents that answer on standard output, or \"file\" for agents that take an -o output path", agentName, a.Output)
	}

	return nil
}

// PollInterval returns the state poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalS) * time.Second
}

// AgentTimeout returns the per-invocation agent timeout as a duration
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutS) * time.Second
}

// LoadFromFile loads a configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return &cfg, nil
}

// SaveToFile writes the configuration to a JSON file with 0600 permissions
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add newline at end of file
	data = append(data, '\n')

	// Write with 0600 permissions (owner read/write only)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}
