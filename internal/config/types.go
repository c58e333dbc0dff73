// Package config resolves, parses, validates, and defaults studymate configuration.
package config

// Config is the fully materialized runtime configuration used by studymate.
type Config struct {
	Gemini    GeminiConfig
	Audio     AudioConfig
	Interview InterviewConfig
	Chat      ChatConfig
	Indicator IndicatorConfig
	Storage   StorageConfig
	Debug     DebugConfig
}

// GeminiConfig controls credentials, endpoints and model ids.
type GeminiConfig struct {
	APIKeyEnv    string
	EnvFile      string
	BaseURL      string
	LiveEndpoint string
	LiveModel    string
	ChatModel    string
	ProModel     string
	TTSModel     string
	Voice        string
}

// AudioConfig controls backend choice and preferred/fallback device selection.
type AudioConfig struct {
	Backend  string
	Input    string
	Fallback string
	Output   string
}

// InterviewConfig controls the interviewer persona and greeting.
type InterviewConfig struct {
	SystemInstruction string
	Focus             []string
	GreetingEnable    bool
	Greeting          string
}

// ChatConfig selects the default chat persona.
type ChatConfig struct {
	Persona string
}

// IndicatorConfig controls desktop notifications and audio cue behavior.
type IndicatorConfig struct {
	Enable            bool
	DesktopAppName    string
	SoundEnable       bool
	SoundStartFile    string
	SoundStopFile     string
	SoundCompleteFile string
	SoundErrorFile    string
	CuePlayer         CommandConfig
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// StorageConfig overrides the local store location.
type StorageConfig struct {
	Path string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
	EnableWireDump  bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
