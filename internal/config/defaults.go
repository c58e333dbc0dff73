package config

// DefaultSystemInstruction is the interviewer persona used for mock interviews.
const DefaultSystemInstruction = "You are a friendly, professional, and encouraging interviewer conducting a mock interview for a university student. " +
	"Ask a wide variety of questions covering communication skills, problem-solving, and general knowledge. " +
	"Don't limit yourself to common questions. If the user struggles to answer a question, gently encourage them, " +
	"perhaps by rephrasing the question or giving them a small hint. Your goal is to create a positive and motivating " +
	"practice environment. Provide constructive feedback at the end if asked."

// DefaultGreeting is spoken when an interview session opens.
const DefaultGreeting = "Hello! I'm ready to start the mock interview when you are. Just begin by telling me a little bit about yourself."

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	cuePlayer := "pw-play --media-role Notification"

	return Config{
		Gemini: GeminiConfig{
			APIKeyEnv:    "GEMINI_API_KEY",
			EnvFile:      ".env",
			LiveEndpoint: "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent",
			LiveModel:    "models/gemini-2.5-flash-native-audio-preview-09-2025",
			ChatModel:    "gemini-2.5-flash",
			ProModel:     "gemini-2.5-pro",
			TTSModel:     "gemini-2.5-flash-preview-tts",
			Voice:        "Kore",
		},
		Audio: AudioConfig{
			Backend:  "pulse",
			Input:    "default",
			Fallback: "default",
			Output:   "default",
		},
		Interview: InterviewConfig{
			SystemInstruction: DefaultSystemInstruction,
			GreetingEnable:    true,
			Greeting:          DefaultGreeting,
		},
		Chat: ChatConfig{Persona: "studyBuddy"},
		Indicator: IndicatorConfig{
			Enable:         false,
			DesktopAppName: "studymate",
			SoundEnable:    true,
			CuePlayer:      CommandConfig{Raw: cuePlayer, Argv: mustParseArgv(cuePlayer)},
		},
		Debug: DebugConfig{},
	}
}
