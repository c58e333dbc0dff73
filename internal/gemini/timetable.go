package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// TimetableEntry is one study slot.
type TimetableEntry struct {
	Day     string `json:"day"`
	Time    string `json:"time"`
	Subject string `json:"subject"`
	Topic   string `json:"topic"`
}

var timetableSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"day":     {Type: genai.TypeString, Description: "Day of the week (e.g., Monday)"},
			"time":    {Type: genai.TypeString, Description: "Time slot (e.g., 9:00 AM - 11:00 AM)"},
			"subject": {Type: genai.TypeString, Description: "The subject to study"},
			"topic":   {Type: genai.TypeString, Description: "A specific topic within the subject"},
		},
		Required: []string{"day", "time", "subject", "topic"},
	},
}

// TimetablePrompt builds the 7-day timetable request.
func TimetablePrompt(subjects string, hoursPerDay int, focus string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a 7-day study timetable. The user wants to study the following subjects: %s. They can study for %d hours per day.", subjects, hoursPerDay)
	if focus = strings.TrimSpace(focus); focus != "" {
		fmt.Fprintf(&b, " Please give special focus and more time to these subjects: %s.", focus)
	}
	b.WriteString(" Create a balanced schedule with specific topics for each subject. Ensure the schedule is practical and includes breaks.")
	return b.String()
}

// Timetable generates a structured weekly study plan.
func (c *Client) Timetable(ctx context.Context, subjects string, hoursPerDay int, focus string) ([]TimetableEntry, error) {
	subjects = strings.TrimSpace(subjects)
	if subjects == "" {
		return nil, fmt.Errorf("subjects must not be empty")
	}
	if hoursPerDay < 1 || hoursPerDay > 24 {
		return nil, fmt.Errorf("hours per day must be between 1 and 24")
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.ProModel, genai.Text(TimetablePrompt(subjects, hoursPerDay, focus)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   timetableSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("generate timetable: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrEmptyResponse
	}
	var entries []TimetableEntry
	if err := json.Unmarshal([]byte(text), &entries); err != nil {
		return nil, fmt.Errorf("decode timetable: %w", err)
	}
	c.logger.Debug("timetable generated", "entries", len(entries))
	return entries, nil
}
