package terminal

import "strings"

// Tokenize splits a command line on runs of whitespace. Blank input yields nil.
func Tokenize(line string) []string {
	return strings.Fields(line)
}
