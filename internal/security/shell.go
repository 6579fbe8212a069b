package security

import (
	"fmt"
	"regexp"
	"strings"
)

// commandSpanRegex matches backtick-delimited and $()-delimited spans, the
// two shell command-substitution shapes.
var commandSpanRegex = regexp.MustCompile("`[^`\n]+`" + `|\$\([^)\n]+\)`)

// destructiveVerbs match privileged or destructive commands inside a span.
// Matching is deliberately narrow: "contains rm -rf" is destructive,
// "mentions rm in prose" is not. The flag-vs-reject boundary on top of this
// is a product decision, so it lives in config (ShellPolicy), not here.
var destructiveVerbs = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+(-[a-zA-Z]*r[a-zA-Z]*f|-[a-zA-Z]*f[a-zA-Z]*r)\b`),
	regexp.MustCompile(`\bsudo\s+\S`),
	regexp.MustCompile(`\bexec\s+\S`),
	regexp.MustCompile(`\|\s*(sh|bash|zsh)\b`),
	regexp.MustCompile(`\bdd\s+.*\bof=`),
	regexp.MustCompile(`\bmkfs\b`),
	regexp.MustCompile(`\bshutdown\b|\breboot\b`),
	regexp.MustCompile(`:\(\)\s*\{.*\|.*&.*\}`),
	regexp.MustCompile(`>\s*/dev/(sd|nvme|disk)`),
}

// fenceRegex matches a markdown code-fence line.
var fenceRegex = regexp.MustCompile("(?m)^\\s*(```|~~~)")

// scanShellPatterns flags command-substitution spans containing destructive
// verbs. Spans inside fenced code blocks are documentation by convention and
// get a medium-severity finding; spans in running text are critical. This
// distinction is what keeps false positives on technical docs tolerable.
func scanShellPatterns(text, elementRef string) []Finding {
	var findings []Finding

	fenced := fencedRanges(text)
	for _, loc := range commandSpanRegex.FindAllStringIndex(text, -1) {
		span := text[loc[0]:loc[1]]
		verb := matchDestructiveVerb(span)
		if verb == "" {
			continue
		}

		if inRanges(loc[0], fenced) {
			findings = append(findings, Finding{
				Severity:   SeverityMedium,
				Code:       FindingShellCodeExample,
				ElementRef: elementRef,
				Detail:     fmt.Sprintf("fenced code example contains destructive command %q", truncateSpan(span)),
			})
			continue
		}

		findings = append(findings, Finding{
			Severity:   SeverityCritical,
			Code:       FindingShellInjection,
			ElementRef: elementRef,
			Detail:     fmt.Sprintf("command substitution with destructive verb %q: %s", verb, truncateSpan(span)),
		})
	}

	return findings
}

// matchDestructiveVerb returns the matched destructive fragment, or "".
func matchDestructiveVerb(span string) string {
	for _, re := range destructiveVerbs {
		if m := re.FindString(span); m != "" {
			return m
		}
	}
	return ""
}

// fencedRanges returns the [start,end) byte ranges of fenced code blocks.
// An unclosed fence extends to the end of the text.
func fencedRanges(text string) [][2]int {
	var ranges [][2]int
	locs := fenceRegex.FindAllStringIndex(text, -1)
	for i := 0; i+1 < len(locs); i += 2 {
		ranges = append(ranges, [2]int{locs[i][0], locs[i+1][1]})
	}
	if len(locs)%2 == 1 {
		ranges = append(ranges, [2]int{locs[len(locs)-1][0], len(text)})
	}
	return ranges
}

func inRanges(pos int, ranges [][2]int) bool {
	for _, r := range ranges {
		if pos >= r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

func truncateSpan(span string) string {
	span = strings.TrimSpace(span)
	if len(span) > 80 {
		return span[:77] + "..."
	}
	return span
}
