package core

import "unicode/utf8"

// charsPerToken is the rough ratio used when a model does not report usage.
const charsPerToken = 4

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}
