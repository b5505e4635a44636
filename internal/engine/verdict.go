package engine

import (
	"regexp"
	"strings"
)

// Verdict is the interpreted outcome of an audit-style transcript.
type Verdict int

const (
	VerdictPass Verdict = iota
	VerdictFail
)

// String returns "PASS" or "FAIL".
func (v Verdict) String() string {
	if v == VerdictFail {
		return "FAIL"
	}
	return "PASS"
}

// verdictTokenRe matches the explicit marker an audit worker is expected
// to emit. The token is scanned on every line, not just the first.
var verdictTokenRe = regexp.MustCompile(`AUDIT_RESULT:\s*(PASS|FAIL)`)

// problemMarkers is the keyword fallback applied only when no explicit
// token is present. "no issues found" contains none of these, so a clean
// report classifies as a pass.
var problemMarkers = []string{"issue:", "issues:", "problem:", "blocker:"}

// Classify interprets an audit transcript as a two-stage classifier.
// Stage 1 scans all lines for the explicit AUDIT_RESULT token; if found
// it wins outright, overriding any keyword elsewhere in the transcript.
// When a transcript carries more than one token, the last one wins.
// Stage 2, only when no token exists, falls back to problem-keyword
// detection: any problem-indicating marker implies fail, otherwise pass.
func Classify(lines []string) Verdict {
	if token, ok := explicitToken(lines); ok {
		return token
	}
	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, marker := range problemMarkers {
			if strings.Contains(lower, marker) {
				return VerdictFail
			}
		}
	}
	return VerdictPass
}

// HasExplicitPass reports whether the transcript carries the literal
// AUDIT_RESULT: PASS token. Final audits require it; a heuristic-only
// pass is not enough to close the final gate.
func HasExplicitPass(lines []string) bool {
	token, ok := explicitToken(lines)
	return ok && token == VerdictPass
}

func explicitToken(lines []string) (Verdict, bool) {
	verdict := VerdictPass
	found := false
	for _, line := range lines {
		for _, match := range verdictTokenRe.FindAllStringSubmatch(line, -1) {
			found = true
			if match[1] == "FAIL" {
				verdict = VerdictFail
			} else {
				verdict = VerdictPass
			}
		}
	}
	return verdict, found
}
