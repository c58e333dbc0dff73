package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// FallbackAPIKeyEnv is consulted when the configured variable is unset.
const FallbackAPIKeyEnv = "API_KEY"

// ErrMissingAPIKey means no API key was found in the environment or env file.
var ErrMissingAPIKey = errors.New("gemini API key not set")

// ResolveAPIKey returns the Gemini API key. Process environment wins over
// the env file; a missing env file is not an error.
func ResolveAPIKey(cfg GeminiConfig, configDir string) (string, error) {
	names := []string{cfg.APIKeyEnv, FallbackAPIKeyEnv}

	for _, name := range names {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			return value, nil
		}
	}

	envPath := envFilePath(cfg.EnvFile, configDir)
	if envPath == "" {
		return "", ErrMissingAPIKey
	}
	values, err := godotenv.Read(envPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrMissingAPIKey
		}
		return "", fmt.Errorf("read env file %q: %w", envPath, err)
	}
	for _, name := range names {
		if value := strings.TrimSpace(values[name]); value != "" {
			return value, nil
		}
	}
	return "", ErrMissingAPIKey
}

func envFilePath(envFile string, configDir string) string {
	if envFile == "" {
		return ""
	}
	if filepath.IsAbs(envFile) || configDir == "" {
		return envFile
	}
	return filepath.Join(configDir, envFile)
}
