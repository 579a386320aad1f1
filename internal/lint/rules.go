// Package lint holds the built-in line-level analyzer the CLI runs when no
// other analyzer is configured.
package lint

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/dusk-indust/codesweep/internal/orchestrator"
)

// Rule names reported in findings.
const (
	RuleLineLength         = "line-length"
	RuleTrailingWhitespace = "trailing-whitespace"
	RuleMarker             = "todo-marker"
	RuleFinalNewline       = "final-newline"
)

// DefaultMaxLineLength is the line-length limit of Default.
const DefaultMaxLineLength = 120

var markers = [][]byte{[]byte("TODO"), []byte("FIXME"), []byte("XXX")}

// Rules checks text files line by line. A zero MaxLineLength disables the
// line-length rule. Binary content yields no findings.
type Rules struct {
	MaxLineLength int
}

var _ orchestrator.Analyzer = Rules{}

// Default returns Rules with DefaultMaxLineLength.
func Default() Rules {
	return Rules{MaxLineLength: DefaultMaxLineLength}
}

func (r Rules) Analyze(ctx context.Context, _ string, content []byte) (orchestrator.Findings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(content) == 0 || bytes.IndexByte(content, 0) >= 0 {
		return nil, nil
	}

	var out orchestrator.Findings
	lines := bytes.Split(content, []byte("\n"))
	for i, line := range lines {
		n := i + 1
		line = bytes.TrimSuffix(line, []byte("\r"))
		if r.MaxLineLength > 0 {
			if width := utf8.RuneCount(line); width > r.MaxLineLength {
				out = append(out, orchestrator.Finding{
					Rule:    RuleLineLength,
					Message: fmt.Sprintf("line is %d characters, limit %d", width, r.MaxLineLength),
					Line:    n,
				})
			}
		}
		if len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t') {
			out = append(out, orchestrator.Finding{Rule: RuleTrailingWhitespace, Message: "trailing whitespace", Line: n})
		}
		for _, m := range markers {
			if bytes.Contains(line, m) {
				out = append(out, orchestrator.Finding{Rule: RuleMarker, Message: string(m) + " marker", Line: n})
				break
			}
		}
	}
	if content[len(content)-1] != '\n' {
		out = append(out, orchestrator.Finding{Rule: RuleFinalNewline, Message: "no newline at end of file", Line: len(lines)})
	}
	return out, nil
}
