package pipeline

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/youpy/go-wav"
)

func TestResolveStateDirUsesXDGStateHome(t *testing.T) {
	xdgStateHome := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdgStateHome)
	t.Setenv("HOME", t.TempDir())

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, xdgStateHome, dir)
}

func TestResolveStateDirFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", home)

	dir, err := resolveStateDir()
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".local", "state"), dir)
}

func TestCreateDebugFileCreatesExpectedPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	file, err := createDebugFile("wire", "jsonl")
	require.NoError(t, err)
	path := file.Name()
	require.NoError(t, file.Close())

	require.FileExists(t, path)
	require.Contains(t, path, string(filepath.Separator)+"studymate"+string(filepath.Separator)+"debug"+string(filepath.Separator))
	require.Contains(t, filepath.Base(path), "wire-")
	require.Equal(t, ".jsonl", filepath.Ext(path))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), stat.Mode().Perm())
}

func TestWriteWAVHeaderAndSamples(t *testing.T) {
	var out bytes.Buffer
	raw := []byte{0x01, 0x00, 0xFF, 0x7F, 0x00, 0x80}
	require.NoError(t, writeWAV(&out, raw, 16000))

	data := out.Bytes()
	require.Len(t, data, 44+len(raw))
	require.Equal(t, "RIFF", string(data[0:4]))
	require.Equal(t, "WAVE", string(data[8:12]))
	require.Equal(t, raw, data[44:])

	reader := wav.NewReader(bytes.NewReader(data))
	format, err := reader.Format()
	require.NoError(t, err)
	require.Equal(t, uint16(16), format.BitsPerSample)
	require.Equal(t, uint32(16000), format.SampleRate)
}

func TestWriteWAVEmpty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeWAV(&out, nil, 16000))
	require.Len(t, out.Bytes(), 44)
}
