// Package transcript defines the turn-record format of the debate history.
//
// The history artifact is plain markdown read by humans and external
// dashboards, so the record layout is a stable contract: a heading line
// naming the role, round and timestamp, the agent output, then a rule.
package transcript

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Role identifies which side of the debate produced a record.
type Role string

const (
	RoleProposer Role = "PROPOSER"
	RoleCritic   Role = "CRITIC"
)

// Counterpart returns the opposite role.
func (r Role) Counterpart() Role {
	if r == RoleProposer {
		return RoleCritic
	}
	return RoleProposer
}

// Valid reports whether r is one of the two debate roles.
func (r Role) Valid() bool {
	return r == RoleProposer || r == RoleCritic
}

// TimestampLayout is the wall-clock format embedded in record headings.
// Minute precision matches what external history consumers parse.
const TimestampLayout = "2006-01-02 15:04"

// Record is one completed turn of the debate.
type Record struct {
	Role      Role
	Round     int
	Timestamp time.Time
	Content   string
}

// Format renders a record as the block appended to the history artifact:
//
//	\n## [ROLE] Round N (YYYY-MM-DD HH:MM)\n\n<content>\n\n---\n
func Format(rec Record) string {
	return fmt.Sprintf("\n## [%s] Round %d (%s)\n\n%s\n\n---\n",
		rec.Role, rec.Round, rec.Timestamp.Format(TimestampLayout), rec.Content)
}

// roleHeading returns the heading prefix whose occurrences count
// completed turns for a role.
func roleHeading(role Role) string {
	return fmt.Sprintf("## [%s]", role)
}

// CountRole counts the completed turns a role has recorded in the
// history text. Round arithmetic is built on this count, never on Parse.
func CountRole(history string, role Role) int {
	return strings.Count(history, roleHeading(role))
}

// recordPattern matches one record block. Content that itself contains a
// horizontal rule ends the match early; Parse serves observers, and the
// orchestration loop never depends on it.
var recordPattern = regexp.MustCompile(`(?s)## \[(PROPOSER|CRITIC)\] Round (\d+) \(([^)]+)\)\n\n(.*?)\n\n---`)

// Parse recovers the records from history text in order. Malformed
// blocks are skipped; a heading with an unparseable timestamp keeps a
// zero Timestamp rather than dropping the record.
func Parse(history string) []Record {
	matches := recordPattern.FindAllStringSubmatch(history, -1)
	if len(matches) == 0 {
		return nil
	}

	records := make([]Record, 0, len(matches))
	for _, m := range matches {
		round, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}

		ts, err := time.ParseInLocation(TimestampLayout, m[3], time.Local)
		if err != nil {
			ts = time.Time{}
		}

		records = append(records, Record{
			Role:      Role(m[1]),
			Round:     round,
			Timestamp: ts,
			Content:   m[4],
		})
	}
	return records
}
