package memory

import (
	"regexp"
	"strings"
)

// Marker flags a line of model output as carrying a fact worth keeping.
const Marker = "[MEMORY]"

var (
	// "Added to memories:", "updated in profile:" and similar.
	actionPrefix = regexp.MustCompile(`(?i)^(?:added|updated|saved|stored)\s+(?:to|in|into)\s+[\w-]+\s*:\s*`)
	// Terminal punctuation followed by whitespace and a capital letter.
	sentenceBoundary = regexp.MustCompile(`[.!?]\s+\p{Lu}`)
)

var bulletPrefixes = []string{"- ", "* ", "+ ", "• "}

// Extract returns the candidate facts found in text, in order of appearance.
// A marker followed directly by a bulleted list yields one candidate per
// bullet; otherwise the rest of the marker line is the candidate.
func Extract(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var facts []string
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		idx := strings.Index(line, Marker)
		if idx < 0 {
			continue
		}

		var bullets []string
		j := i + 1
		for ; j < len(lines); j++ {
			b, ok := stripBullet(strings.TrimSpace(lines[j]))
			if !ok {
				break
			}
			bullets = append(bullets, b)
		}
		if len(bullets) > 0 {
			for _, b := range bullets {
				if b != "" {
					facts = append(facts, b)
				}
			}
			i = j - 1
			continue
		}

		if fact := cleanRemainder(line[idx+len(Marker):]); fact != "" {
			facts = append(facts, fact)
		}
	}
	return facts
}

func stripBullet(line string) (string, bool) {
	for _, p := range bulletPrefixes {
		if strings.HasPrefix(line, p) {
			return strings.TrimSpace(line[len(p):]), true
		}
	}
	return "", false
}

func cleanRemainder(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, ":- \t")
	s = actionPrefix.ReplaceAllString(s, "")

	if loc := sentenceBoundary.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[:loc[0]+1])
	}
	return strings.TrimSpace(strings.TrimRight(s, ".!?;:, \t"))
}
