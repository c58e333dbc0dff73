package transcript

import "strings"

// FormatForFeedback renders turns as interviewer/candidate blocks separated by
// blank lines, with whitespace collapsed inside each utterance.
func FormatForFeedback(turns []Turn) string {
	blocks := make([]string, 0, len(turns))
	for _, turn := range turns {
		blocks = append(blocks, "Interviewer: "+clean(turn.Model)+"\nCandidate: "+clean(turn.User))
	}
	return strings.Join(blocks, "\n\n")
}

func clean(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
