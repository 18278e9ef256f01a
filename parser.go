package exporter

import "regexp"

// HighstateFormatVersion identifies the line shapes HighstateParser
// understands. It is logged with every completed run; bump it when the
// patterns change.
const HighstateFormatVersion = 1

// Parser turns raw command output into state counts. Implementations must
// return zero counts, not an error, for empty input.
type Parser interface {
	Parse(lines []string) Counts
}

// HighstateParser counts states in the human-readable output of
// `salt-call state.highstate test=true`:
//
//	          ID: nginx
//	    Function: pkg.installed
//	      Result: None
//
// Each pattern is matched independently against every line.
type HighstateParser struct {
	stateID *regexp.Regexp
	pending *regexp.Regexp
	failed  *regexp.Regexp
}

// NewHighstateParser returns a parser for format version
// HighstateFormatVersion.
func NewHighstateParser() *HighstateParser {
	return &HighstateParser{
		stateID: regexp.MustCompile(`\s+ID:.*`),
		pending: regexp.MustCompile(`\s+Result: None`),
		failed:  regexp.MustCompile(`\s+Result: False`),
	}
}

func (p *HighstateParser) Parse(lines []string) Counts {
	var c Counts
	for _, line := range lines {
		if p.stateID.MatchString(line) {
			c.TotalStates++
		}
		if p.pending.MatchString(line) {
			c.NonHighStates++
		}
		if p.failed.MatchString(line) {
			c.ErrorStates++
		}
	}
	return c
}

var _ Parser = (*HighstateParser)(nil)
