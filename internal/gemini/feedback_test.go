package gemini

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rbright/studymate/internal/transcript"
)

func TestFeedbackPromptEmbedsTranscript(t *testing.T) {
	prompt := FeedbackPrompt([]transcript.Turn{
		{Model: "Tell me about yourself.", User: "I build compilers."},
		{Model: "Why this role?", User: "I like teams."},
	})

	require.True(t, strings.HasPrefix(prompt, "You are an expert career coach"))
	require.Contains(t, prompt, "---\nInterviewer: Tell me about yourself.\nCandidate: I build compilers.\n\nInterviewer: Why this role?\nCandidate: I like teams.\n---")
	require.True(t, strings.HasSuffix(prompt, "Please provide the detailed feedback now, including example answers."))
}

func TestFeedbackRequiresTurns(t *testing.T) {
	api, client := newFakeAPI(t, func(string) string { return textReply("x") })
	_, err := client.Feedback(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoTurns)
	require.Empty(t, api.requests())
}

func TestFeedbackUsesProModel(t *testing.T) {
	api, client := newFakeAPI(t, func(string) string { return textReply("**What Went Well:** plenty") })

	got, err := client.Feedback(context.Background(), []transcript.Turn{{Model: "Q", User: "A"}})
	require.NoError(t, err)
	require.Equal(t, "**What Went Well:** plenty", got)

	reqs := api.requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "/v1beta/models/gemini-2.5-pro:generateContent", reqs[0].Path)
	require.Contains(t, reqs[0].Raw, "Interviewer: Q\\nCandidate: A")
}
