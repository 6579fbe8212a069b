package security

import (
	"regexp"
	"strings"
)

// anchorDefRegex matches a YAML anchor definition (&name); aliasRegex matches
// an alias reference (*name). Merge keys (<<: *name) count as aliases.
var (
	anchorDefRegex = regexp.MustCompile(`&([A-Za-z0-9_-]+)`)
	aliasRegex     = regexp.MustCompile(`\*([A-Za-z0-9_-]+)`)
)

// yamlExpansionRatio estimates how far anchor/alias expansion would inflate
// the content, without handing it to a YAML parser. It returns the estimated
// ratio and whether it exceeds limit. The estimate is conservative: each
// anchor's body is the anchor line plus its more-indented continuation lines,
// and aliases expand recursively with memoization. Estimation aborts early
// once the running total passes limit*len(text), so the guard itself stays
// cheap on hostile input. Cycles count as exceeding the limit.
func yamlExpansionRatio(text string, limit int) (int, bool) {
	if len(text) == 0 {
		return 1, false
	}

	lines := strings.Split(text, "\n")

	// Collect anchor bodies.
	bodies := map[string]string{}
	for i, line := range lines {
		m := anchorDefRegex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := m[1]
		indent := leadingSpaces(line)
		var body strings.Builder
		body.WriteString(line)
		for j := i + 1; j < len(lines); j++ {
			next := lines[j]
			if strings.TrimSpace(next) != "" && leadingSpaces(next) <= indent {
				break
			}
			body.WriteString("\n")
			body.WriteString(next)
		}
		// First definition wins; redefinition is the parser's problem.
		if _, ok := bodies[name]; !ok {
			bodies[name] = body.String()
		}
	}

	if len(bodies) == 0 {
		return 1, false
	}

	budget := int64(limit) * int64(len(text))
	memo := map[string]int64{}
	visiting := map[string]bool{}

	var expandedSize func(name string) int64
	expandedSize = func(name string) int64 {
		if size, ok := memo[name]; ok {
			return size
		}
		if visiting[name] {
			// Alias cycle: real expansion would be unbounded.
			return budget + 1
		}
		body, ok := bodies[name]
		if !ok {
			return 0
		}
		visiting[name] = true
		defer delete(visiting, name)

		size := int64(len(body))
		for _, m := range aliasRegex.FindAllStringSubmatch(body, -1) {
			size += expandedSize(m[1])
			if size > budget {
				break
			}
		}
		memo[name] = size
		return size
	}

	total := int64(len(text))
	for _, m := range aliasRegex.FindAllStringSubmatch(text, -1) {
		total += expandedSize(m[1])
		if total > budget {
			break
		}
	}

	ratio := int(total / int64(len(text)))
	if ratio < 1 {
		ratio = 1
	}
	return ratio, total > budget
}

func leadingSpaces(s string) int {
	n := 0
	for _, r := range s {
		if r != ' ' && r != '\t' {
			break
		}
		n++
	}
	return n
}
