package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/rbright/studymate/internal/transcript"
)

// ErrNoTurns means there is nothing to give feedback on.
var ErrNoTurns = errors.New("interview transcript is empty")

const feedbackPromptHead = `You are an expert career coach providing feedback on a mock interview. Your goal is to be constructive, supportive, and highly specific.

Analyze the following interview transcript. Structure your feedback into two main sections:
1.  **What Went Well:** Highlight the candidate's strengths. Be specific and point to examples from the transcript.
2.  **Areas for Improvement:** Identify specific weaknesses. For each point, do the following:
    a. Clearly state the issue (e.g., "The answer to 'Tell me about a time you faced a challenge' was a bit vague.").
    b. Explain *why* it's an area for improvement (e.g., "Using the STAR method helps create a more impactful story.").
    c. Provide a concrete, improved **example answer** that the candidate could have used. This is the most important part.

Common areas to look for include:
- Use of the STAR (Situation, Task, Action, Result) method for behavioral questions.
- Clarity and conciseness.
- Providing specific examples and data vs. general statements.
- Confidence and enthusiasm in their tone (as inferred from the text).

Here is the transcript:
---
`

const feedbackPromptTail = `
---

Please provide the detailed feedback now, including example answers.`

// FeedbackPrompt embeds the formatted transcript in the coaching prompt.
func FeedbackPrompt(turns []transcript.Turn) string {
	return feedbackPromptHead + transcript.FormatForFeedback(turns) + feedbackPromptTail
}

// Feedback asks the pro model for coaching on a finished interview.
func (c *Client) Feedback(ctx context.Context, turns []transcript.Turn) (string, error) {
	if len(turns) == 0 {
		return "", ErrNoTurns
	}
	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.ProModel, genai.Text(FeedbackPrompt(turns)), nil)
	if err != nil {
		return "", fmt.Errorf("generate feedback: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
