// Package classify inspects the trailing output of a failed worker run and
// assigns one of three failure classifications: rate-limited, authentication
// failure, or generic. The three tiers exist because each needs a different
// recovery path: retry under a swapped profile, surface for operator
// reconfiguration, or plain report.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/taskdeck/agentexec/pkg/models"
)

// rateLimitPatterns match provider throttling output. Checked first.
var rateLimitPatterns = compilePatterns([]string{
	`(?i)rate[- ]?limit(?:ed|s)?`,
	`(?i)too many requests`,
	`\b429\b`,
	`(?i)(?:quota|usage limit)\s+(?:exceeded|reached)`,
	`(?i)overloaded_error`,
	`(?i)pre-flight check is taking longer than expected`,
})

// resetPatterns extract a human-readable reset time from throttling output.
var resetPatterns = compilePatterns([]string{
	`(?i)resets? (?:at|in) ([^.,;|\n]+)`,
	`(?i)try again (?:at|in|after) ([^.,;|\n]+)`,
	`(?i)retry[- ]after[:= ]+([^.,;|\n]+)`,
})

// limitedProfilePattern extracts the profile the provider named as limited.
var limitedProfilePattern = regexp.MustCompile(`(?i)profile ['"]?([A-Za-z0-9._-]+)['"]?`)

// suggestedProfilePattern extracts an alternative the output proposed.
var suggestedProfilePattern = regexp.MustCompile(`(?i)switch(?:ing)? to profile ['"]?([A-Za-z0-9._-]+)['"]?`)

// authPatterns map credential failure phrasing to a failure type. Order
// matters: the more specific expiry phrasing is tried before the generic
// invalid-credential and permission phrasing.
var authPatterns = []struct {
	re   *regexp.Regexp
	kind models.AuthFailureType
}{
	{regexp.MustCompile(`(?i)(?:expired|revoked)\s+(?:api key|key|token|credentials?)`), models.AuthExpiredCredentials},
	{regexp.MustCompile(`(?i)(?:api key|key|token|credentials?)\s+(?:has\s+)?(?:expired|been revoked)`), models.AuthExpiredCredentials},
	{regexp.MustCompile(`(?i)invalid\s+(?:api key|x-api-key|key|token|credentials?)`), models.AuthInvalidCredentials},
	{regexp.MustCompile(`(?i)authentication[_ ](?:failed|error)`), models.AuthInvalidCredentials},
	{regexp.MustCompile(`\b401\b`), models.AuthInvalidCredentials},
	{regexp.MustCompile(`(?i)\bunauthorized\b`), models.AuthInvalidCredentials},
	{regexp.MustCompile(`(?i)permission denied`), models.AuthPermissionDenied},
	{regexp.MustCompile(`\b403\b`), models.AuthPermissionDenied},
	{regexp.MustCompile(`(?i)\bforbidden\b`), models.AuthPermissionDenied},
}

// errorKeywordPattern selects the trailing lines most likely to explain a
// generic failure.
var errorKeywordPattern = regexp.MustCompile(`(?i)\b(?:error|failed|failure|fatal|exception|panic|traceback)\b`)

// ansiPattern matches terminal escape sequences so colored worker output
// still classifies.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// maxDetailLines bounds how many trailing lines a generic classification
// carries.
const maxDetailLines = 5

// compilePatterns compiles a pattern list, skipping entries that fail to
// compile.
func compilePatterns(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		compiled = append(compiled, re)
	}
	return compiled
}

// Classify runs the three-tier cascade over the trailing output of a run
// that exited with a non-zero code. Rate-limit signatures win over auth
// signatures; anything else is generic.
func Classify(tail string, exitCode int) models.FailureClassification {
	text := stripANSI(tail)
	lines := splitLines(text)

	if line, ok := lastMatchingLine(lines, rateLimitPatterns); ok {
		// Strip suggestion phrases before looking for the limited profile
		// so "switch to profile X" is not read as the limited one.
		info := &models.RateLimitInfo{
			Message:          line,
			ResetHint:        firstCapture(text, resetPatterns),
			LimitedProfile:   capture(limitedProfilePattern, suggestedProfilePattern.ReplaceAllString(text, "")),
			SuggestedProfile: capture(suggestedProfilePattern, text),
		}
		return models.FailureClassification{Kind: models.FailureRateLimited, RateLimit: info}
	}

	if line, kind, ok := lastAuthLine(lines); ok {
		info := &models.AuthFailureInfo{FailureType: kind, Message: line}
		return models.FailureClassification{Kind: models.FailureAuth, Auth: info}
	}

	return models.FailureClassification{
		Kind:   models.FailureGeneric,
		Detail: genericDetail(lines, exitCode),
	}
}

// genericDetail prefers trailing lines that look like error text over an
// arbitrary tail, then falls back to the last non-empty lines.
func genericDetail(lines []string, exitCode int) string {
	relevant := make([]string, 0, maxDetailLines)
	for _, line := range lines {
		if errorKeywordPattern.MatchString(line) {
			relevant = append(relevant, line)
			if len(relevant) > maxDetailLines {
				relevant = relevant[1:]
			}
		}
	}
	if len(relevant) == 0 {
		relevant = lastNonEmptyLines(lines, 3)
	}

	detail := fmt.Sprintf("process exited with code %d", exitCode)
	if len(relevant) > 0 {
		detail += "\n" + strings.Join(relevant, "\n")
	}
	return detail
}

// lastMatchingLine returns the last line matching any pattern.
func lastMatchingLine(lines []string, patterns []*regexp.Regexp) (string, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		if matchesAny(lines[i], patterns) {
			return lines[i], true
		}
	}
	return "", false
}

// lastAuthLine returns the last line matching an auth pattern and its
// failure type. Within a line the pattern order decides the type.
func lastAuthLine(lines []string) (string, models.AuthFailureType, bool) {
	for i := len(lines) - 1; i >= 0; i-- {
		for _, ap := range authPatterns {
			if ap.re.MatchString(lines[i]) {
				return lines[i], ap.kind, true
			}
		}
	}
	return "", "", false
}

// matchesAny reports whether text matches any of the patterns.
func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// firstCapture returns the first capture group of the first pattern that
// matches.
func firstCapture(text string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if got := capture(re, text); got != "" {
			return got
		}
	}
	return ""
}

// capture returns the first capture group of a match, trimmed.
func capture(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// lastNonEmptyLines returns up to n trailing non-empty lines in order.
func lastNonEmptyLines(lines []string, n int) []string {
	var out []string
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			out = append(out, lines[i])
		}
	}
	// Collected backwards; restore original order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// splitLines splits text into trimmed-right lines.
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		lines = append(lines, strings.TrimRight(line, "\r"))
	}
	return lines
}

// stripANSI removes terminal escape sequences.
func stripANSI(text string) string {
	return ansiPattern.ReplaceAllString(text, "")
}
