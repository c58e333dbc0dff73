//go:build integration

package audio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListDevicesIntegration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	devices, err := ListDevices(ctx, BackendPulse)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
}

func TestCaptureIntegrationDeliversFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	capture, err := StartCapture(ctx, CaptureConfig{Backend: BackendPulse, Input: "default"})
	require.NoError(t, err)
	defer capture.Close()

	frame := <-capture.Frames()
	require.Len(t, frame, DefaultFrameSize)
}
