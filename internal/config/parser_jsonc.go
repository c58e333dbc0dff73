package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Gemini    *jsoncGemini    `json:"gemini"`
	Audio     *jsoncAudio     `json:"audio"`
	Interview *jsoncInterview `json:"interview"`
	Chat      *jsoncChat      `json:"chat"`
	Indicator *jsoncIndicator `json:"indicator"`
	Storage   *jsoncStorage   `json:"storage"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncGemini struct {
	APIKeyEnv    *string `json:"api_key_env"`
	EnvFile      *string `json:"env_file"`
	BaseURL      *string `json:"base_url"`
	LiveEndpoint *string `json:"live_endpoint"`
	LiveModel    *string `json:"live_model"`
	ChatModel    *string `json:"chat_model"`
	ProModel     *string `json:"pro_model"`
	TTSModel     *string `json:"tts_model"`
	Voice        *string `json:"voice"`
}

type jsoncAudio struct {
	Backend  *string `json:"backend"`
	Input    *string `json:"input"`
	Fallback *string `json:"fallback"`
	Output   *string `json:"output"`
}

type jsoncInterview struct {
	SystemInstruction *string          `json:"system_instruction"`
	Focus             *jsoncStringList `json:"focus"`
	GreetingEnable    *bool            `json:"greeting_enable"`
	Greeting          *string          `json:"greeting"`
}

type jsoncChat struct {
	Persona *string `json:"persona"`
}

type jsoncIndicator struct {
	Enable            *bool   `json:"enable"`
	DesktopAppName    *string `json:"desktop_app_name"`
	SoundEnable       *bool   `json:"sound_enable"`
	SoundStartFile    *string `json:"sound_start_file"`
	SoundStopFile     *string `json:"sound_stop_file"`
	SoundCompleteFile *string `json:"sound_complete_file"`
	SoundErrorFile    *string `json:"sound_error_file"`
	CuePlayerCmd      *string `json:"cue_player_cmd"`
}

type jsoncStorage struct {
	Path *string `json:"path"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
	WireDump  *bool `json:"wire_dump"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = strings.Split(single, ",")
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	if err := payload.applyTo(&cfg); err != nil {
		return Config{}, nil, err
	}

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func (payload jsoncConfig) applyTo(cfg *Config) error {
	if g := payload.Gemini; g != nil {
		setString(&cfg.Gemini.APIKeyEnv, g.APIKeyEnv)
		setString(&cfg.Gemini.EnvFile, g.EnvFile)
		setString(&cfg.Gemini.BaseURL, g.BaseURL)
		setString(&cfg.Gemini.LiveEndpoint, g.LiveEndpoint)
		setString(&cfg.Gemini.LiveModel, g.LiveModel)
		setString(&cfg.Gemini.ChatModel, g.ChatModel)
		setString(&cfg.Gemini.ProModel, g.ProModel)
		setString(&cfg.Gemini.TTSModel, g.TTSModel)
		setString(&cfg.Gemini.Voice, g.Voice)
	}

	if a := payload.Audio; a != nil {
		setString(&cfg.Audio.Backend, a.Backend)
		setString(&cfg.Audio.Input, a.Input)
		setString(&cfg.Audio.Fallback, a.Fallback)
		setString(&cfg.Audio.Output, a.Output)
	}

	if iv := payload.Interview; iv != nil {
		if iv.SystemInstruction != nil {
			cfg.Interview.SystemInstruction = *iv.SystemInstruction
		}
		if iv.Focus != nil {
			cfg.Interview.Focus = nil
			for _, topic := range *iv.Focus {
				if topic = strings.TrimSpace(topic); topic != "" {
					cfg.Interview.Focus = append(cfg.Interview.Focus, topic)
				}
			}
		}
		if iv.GreetingEnable != nil {
			cfg.Interview.GreetingEnable = *iv.GreetingEnable
		}
		if iv.Greeting != nil {
			cfg.Interview.Greeting = *iv.Greeting
		}
	}

	if payload.Chat != nil {
		setString(&cfg.Chat.Persona, payload.Chat.Persona)
	}

	if ind := payload.Indicator; ind != nil {
		if ind.Enable != nil {
			cfg.Indicator.Enable = *ind.Enable
		}
		if ind.SoundEnable != nil {
			cfg.Indicator.SoundEnable = *ind.SoundEnable
		}
		setString(&cfg.Indicator.DesktopAppName, ind.DesktopAppName)
		setString(&cfg.Indicator.SoundStartFile, ind.SoundStartFile)
		setString(&cfg.Indicator.SoundStopFile, ind.SoundStopFile)
		setString(&cfg.Indicator.SoundCompleteFile, ind.SoundCompleteFile)
		setString(&cfg.Indicator.SoundErrorFile, ind.SoundErrorFile)
		if ind.CuePlayerCmd != nil {
			raw := *ind.CuePlayerCmd
			argv, err := parseArgv(raw)
			if err != nil {
				return fmt.Errorf("invalid indicator.cue_player_cmd: %w", err)
			}
			cfg.Indicator.CuePlayer = CommandConfig{Raw: raw, Argv: argv}
		}
	}

	if payload.Storage != nil {
		setString(&cfg.Storage.Path, payload.Storage.Path)
	}

	if d := payload.Debug; d != nil {
		if d.AudioDump != nil {
			cfg.Debug.EnableAudioDump = *d.AudioDump
		}
		if d.WireDump != nil {
			cfg.Debug.EnableWireDump = *d.WireDump
		}
	}

	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
