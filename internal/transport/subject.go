package transport

import "strings"

// subjectMatches applies NATS wildcard rules: "*" matches one token and a
// trailing ">" matches one or more tokens.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")
	for idx, token := range patternTokens {
		if token == ">" {
			return idx == len(patternTokens)-1 && len(subjectTokens) > idx
		}
		if idx >= len(subjectTokens) {
			return false
		}
		if token != "*" && token != subjectTokens[idx] {
			return false
		}
	}
	return len(patternTokens) == len(subjectTokens)
}

func isWildcard(subject string) bool {
	for _, token := range strings.Split(subject, ".") {
		if token == "*" || token == ">" {
			return true
		}
	}
	return false
}
