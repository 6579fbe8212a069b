package security

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// bidiControls are directional override/embedding characters used in
// identifier-spoofing attacks (e.g. making "exe.txt" display as "txt.exe").
var bidiControls = map[rune]string{
	'\u202A': "LEFT-TO-RIGHT EMBEDDING",
	'\u202B': "RIGHT-TO-LEFT EMBEDDING",
	'\u202C': "POP DIRECTIONAL FORMATTING",
	'\u202D': "LEFT-TO-RIGHT OVERRIDE",
	'\u202E': "RIGHT-TO-LEFT OVERRIDE",
	'\u2066': "LEFT-TO-RIGHT ISOLATE",
	'\u2067': "RIGHT-TO-LEFT ISOLATE",
	'\u2068': "FIRST STRONG ISOLATE",
	'\u2069': "POP DIRECTIONAL ISOLATE",
}

// zeroWidthChars are invisible characters that can hide payloads or split
// tokens past naive matchers.
var zeroWidthChars = map[rune]string{
	'\u200B': "ZERO WIDTH SPACE",
	'\u200C': "ZERO WIDTH NON-JOINER",
	'\u200D': "ZERO WIDTH JOINER",
	'\u2060': "WORD JOINER",
	'\uFEFF': "ZERO WIDTH NO-BREAK SPACE",
}

// normalizeUnicode applies NFC canonical normalization and flags classic
// spoofing vectors. NFC is idempotent, so re-validating stored content is a
// no-op. Flags are findings, not rejections: legitimate multilingual content
// trips these too.
func normalizeUnicode(text, elementRef string) (string, []Finding) {
	var findings []Finding

	normalized := norm.NFC.String(text)
	if normalized != text {
		findings = append(findings, Finding{
			Severity:   SeverityLow,
			Code:       FindingUnicodeNormalized,
			ElementRef: elementRef,
			Detail:     "content was not in NFC form; canonical normalization applied",
		})
	}

	seenBidi := map[rune]bool{}
	seenZW := map[rune]bool{}
	for _, r := range normalized {
		if name, ok := bidiControls[r]; ok && !seenBidi[r] {
			seenBidi[r] = true
			findings = append(findings, Finding{
				Severity:   SeverityHigh,
				Code:       FindingBidiOverride,
				ElementRef: elementRef,
				Detail:     fmt.Sprintf("contains bidirectional control character U+%04X (%s)", r, name),
			})
		}
		if name, ok := zeroWidthChars[r]; ok && !seenZW[r] {
			seenZW[r] = true
			findings = append(findings, Finding{
				Severity:   SeverityMedium,
				Code:       FindingZeroWidth,
				ElementRef: elementRef,
				Detail:     fmt.Sprintf("contains zero-width character U+%04X (%s)", r, name),
			})
		}
	}

	if token, ok := firstMixedScriptToken(normalized); ok {
		findings = append(findings, Finding{
			Severity:   SeverityMedium,
			Code:       FindingMixedScript,
			ElementRef: elementRef,
			Detail:     fmt.Sprintf("token %q mixes Latin with Cyrillic or Greek letters (possible homograph)", token),
		})
	}

	return normalized, findings
}

// firstMixedScriptToken scans identifier-like tokens for Latin mixed with
// Cyrillic or Greek inside the same token, the classic homograph shape.
// Whole-token foreign script is normal prose and is not flagged.
func firstMixedScriptToken(text string) (string, bool) {
	for _, token := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-' && r != '.'
	}) {
		var hasLatin, hasConfusable bool
		for _, r := range token {
			switch {
			case unicode.Is(unicode.Latin, r):
				hasLatin = true
			case unicode.Is(unicode.Cyrillic, r), unicode.Is(unicode.Greek, r):
				hasConfusable = true
			}
		}
		if hasLatin && hasConfusable {
			return token, true
		}
	}
	return "", false
}
