// Package doctor runs readiness diagnostics for config, credentials, audio,
// the realtime endpoint, and local state.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/studymate/internal/audio"
	"github.com/rbright/studymate/internal/config"
	"github.com/rbright/studymate/internal/store"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes every check against a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{{
		Name:    "config",
		Pass:    true,
		Message: fmt.Sprintf("loaded %q", loaded.Path),
	}}

	checks = append(checks, checkAPIKey(cfg.Gemini, filepath.Dir(loaded.Path)))
	checks = append(checks, checkEndpoint(ctx, cfg.Gemini.LiveEndpoint))
	checks = append(checks, checkAudioSelection(ctx, cfg.Audio))
	checks = append(checks, checkStore(cfg.Storage.Path))

	if cfg.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}
	if cfg.Indicator.SoundEnable && hasCueFiles(cfg.Indicator) {
		checks = append(checks, checkCommand(cfg.Indicator.CuePlayer.Argv, "cue_player_cmd"))
	}

	return Report{Checks: checks}
}

func checkAPIKey(cfg config.GeminiConfig, configDir string) Check {
	key, err := config.ResolveAPIKey(cfg, configDir)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, config.ErrMissingAPIKey) {
			msg = fmt.Sprintf("set %s (or %s) in the environment or %s", cfg.APIKeyEnv, config.FallbackAPIKeyEnv, cfg.EnvFile)
		}
		return Check{Name: "gemini.api_key", Pass: false, Message: msg}
	}
	return Check{Name: "gemini.api_key", Pass: true, Message: "found " + maskKey(key)}
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-4) + key[len(key)-4:]
}

// checkEndpoint verifies the live endpoint host accepts TCP connections.
func checkEndpoint(ctx context.Context, endpoint string) Check {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return Check{Name: "gemini.live_endpoint", Pass: false, Message: fmt.Sprintf("invalid endpoint %q", endpoint)}
	}
	host := u.Host
	if u.Port() == "" {
		port := "443"
		if u.Scheme == "ws" || u.Scheme == "http" {
			port = "80"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	dialer := net.Dialer{Timeout: 2 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return Check{Name: "gemini.live_endpoint", Pass: false, Message: fmt.Sprintf("dial %s: %v", host, err)}
	}
	_ = conn.Close()
	return Check{Name: "gemini.live_endpoint", Pass: true, Message: "reachable at " + host}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.AudioConfig) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Backend, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q via %s", selection.Device.ID, cfg.Backend)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}

func checkStore(explicit string) Check {
	path, err := store.ResolvePath(explicit)
	if err != nil {
		return Check{Name: "storage", Pass: false, Message: err.Error()}
	}
	if _, err := store.Open(path, nil); err != nil {
		return Check{Name: "storage", Pass: false, Message: err.Error()}
	}
	return Check{Name: "storage", Pass: true, Message: fmt.Sprintf("readable at %q", path)}
}

func hasCueFiles(cfg config.IndicatorConfig) bool {
	for _, f := range []string{cfg.SoundStartFile, cfg.SoundStopFile, cfg.SoundCompleteFile, cfg.SoundErrorFile} {
		if strings.TrimSpace(f) != "" {
			return true
		}
	}
	return false
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
