package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if cfg.Gemini.APIKeyEnv == "" {
		return nil, fmt.Errorf("gemini.api_key_env must not be empty")
	}
	endpoint, err := url.Parse(cfg.Gemini.LiveEndpoint)
	if err != nil || (endpoint.Scheme != "ws" && endpoint.Scheme != "wss") {
		return nil, fmt.Errorf("gemini.live_endpoint must be a ws:// or wss:// URL")
	}
	if cfg.Gemini.BaseURL != "" {
		base, err := url.Parse(cfg.Gemini.BaseURL)
		if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
			return nil, fmt.Errorf("gemini.base_url must be an http:// or https:// URL")
		}
	}
	for name, model := range map[string]string{
		"gemini.live_model": cfg.Gemini.LiveModel,
		"gemini.chat_model": cfg.Gemini.ChatModel,
		"gemini.pro_model":  cfg.Gemini.ProModel,
		"gemini.tts_model":  cfg.Gemini.TTSModel,
	} {
		if model == "" {
			return nil, fmt.Errorf("%s must not be empty", name)
		}
	}

	backend := strings.ToLower(cfg.Audio.Backend)
	if backend != "pulse" && backend != "portaudio" {
		return nil, fmt.Errorf("audio.backend must be one of: pulse, portaudio")
	}

	if strings.TrimSpace(cfg.Interview.SystemInstruction) == "" {
		return nil, fmt.Errorf("interview.system_instruction must not be empty")
	}
	if cfg.Interview.GreetingEnable && strings.TrimSpace(cfg.Interview.Greeting) == "" {
		warnings = append(warnings, Warning{Message: "interview.greeting is empty; greeting disabled"})
	}
	if cfg.Interview.GreetingEnable && cfg.Gemini.Voice == "" {
		return nil, fmt.Errorf("gemini.voice must not be empty when interview.greeting_enable=true")
	}

	if cfg.Chat.Persona == "" {
		return nil, fmt.Errorf("chat.persona must not be empty")
	}

	if cfg.Indicator.Enable && cfg.Indicator.DesktopAppName == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.CuePlayer.Raw != "" && len(cfg.Indicator.CuePlayer.Argv) == 0 {
		return nil, fmt.Errorf("indicator.cue_player_cmd is configured but empty")
	}

	return warnings, nil
}

// SystemInstructionText returns the interviewer instruction with focus topics appended.
func (c InterviewConfig) SystemInstructionText() string {
	if len(c.Focus) == 0 {
		return c.SystemInstruction
	}
	return c.SystemInstruction + " Give particular attention to these topics: " + strings.Join(c.Focus, ", ") + "."
}
