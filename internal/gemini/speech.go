package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/rbright/studymate/internal/pcm"
)

// ErrNoAudio means the speech response carried no inline audio.
var ErrNoAudio = errors.New("no audio data received from API")

// Greeting synthesizes text with the configured prebuilt voice and returns
// mono PCM at the output rate.
func (c *Client) Greeting(ctx context.Context, text string) (pcm.Buffer, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.TTSModel, genai.Text(text), &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.cfg.Voice},
			},
		},
	})
	if err != nil {
		return pcm.Buffer{}, fmt.Errorf("generate speech: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return pcm.Buffer{}, ErrNoAudio
	}
	part := resp.Candidates[0].Content.Parts[0]
	if part.InlineData == nil || len(part.InlineData.Data) == 0 {
		return pcm.Buffer{}, ErrNoAudio
	}
	return pcm.DecodeAudioData(part.InlineData.Data, pcm.OutputSampleRate, 1)
}

// Greeter returns a func that speaks text, for use as the session greeting.
func (c *Client) Greeter(text string) func(context.Context) (pcm.Buffer, error) {
	return func(ctx context.Context) (pcm.Buffer, error) {
		return c.Greeting(ctx, text)
	}
}
