package engine

import (
	"fmt"
	"strings"
)

// Default retry ceilings. The final-audit family has no evidenced
// default; it is configurable and DefaultFinalAuditPasses is only the
// fallback when the caller provides nothing.
const (
	DefaultAuditPasses      = 4
	DefaultTestPasses       = 5
	DefaultFinalAuditPasses = 3
)

// Tier is the strictness level an audit-style pass is instructed to
// apply. Later passes are progressively less pedantic; the last tier is
// restricted to critical blockers only.
type Tier int

const (
	TierThorough Tier = iota
	TierStandard
	TierLenient
	TierCriticalOnly
)

// String returns the tier name used in prompt construction.
func (t Tier) String() string {
	switch t {
	case TierThorough:
		return "thorough"
	case TierStandard:
		return "standard"
	case TierLenient:
		return "lenient"
	case TierCriticalOnly:
		return "critical-only"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// tierForPass maps a 1-based pass number to its strictness tier.
// The final pass before the ceiling is always critical-only.
func tierForPass(pass, ceiling int) Tier {
	if ceiling > 0 && pass >= ceiling {
		return TierCriticalOnly
	}
	switch pass {
	case 1:
		return TierThorough
	case 2:
		return TierStandard
	default:
		return TierLenient
	}
}

// feedbackTailLines bounds how much transcript is threaded into the
// next pass as feedback.
const feedbackTailLines = 10

// synthesizeFeedback condenses a failed pass into feedback text for the
// next attempt: the transcript tail plus the exit code.
func synthesizeFeedback(lines []string, exitCode int) string {
	var tail []string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		tail = append(tail, line)
	}
	if len(tail) > feedbackTailLines {
		tail = tail[len(tail)-feedbackTailLines:]
	}
	if len(tail) == 0 {
		return fmt.Sprintf("previous pass produced no output (exit code %d)", exitCode)
	}
	return fmt.Sprintf("previous pass failed (exit code %d):\n%s", exitCode, strings.Join(tail, "\n"))
}

// lastReason extracts a one-line reason from a transcript for failure
// records: the last non-empty line, or a placeholder.
func lastReason(lines []string, exitCode int) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			return lines[i]
		}
	}
	return fmt.Sprintf("no output (exit code %d)", exitCode)
}
