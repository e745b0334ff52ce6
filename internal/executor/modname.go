package executor

import "strings"

// MissingModule guesses the package to install from an import failure
// message: the last whitespace-delimited token with surrounding quotes
// removed. "No module named 'requests'" yields "requests".
//
// The rule is a heuristic. Any import-category failure whose message ends
// in a word is treated as naming a missing module, and dotted names are
// returned whole ("No module named 'a.b'" yields "a.b").
func MissingModule(message string) string {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], `'"`)
}
