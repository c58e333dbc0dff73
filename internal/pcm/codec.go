// Package pcm converts between raw 16-bit PCM, normalized float samples, and
// the text-safe transport encoding used on the realtime wire.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// InputSampleRate is the microphone capture rate sent upstream.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of synthesized speech streamed back.
	OutputSampleRate = 24000
	// InputMIMEType labels outbound microphone frames.
	InputMIMEType = "audio/pcm;rate=16000"

	scale = 32768
)

// MalformedEncodingError reports an inbound payload that is not valid base64.
type MalformedEncodingError struct {
	Err error
}

func (e *MalformedEncodingError) Error() string {
	return fmt.Sprintf("malformed audio encoding: %v", e.Err)
}

func (e *MalformedEncodingError) Unwrap() error {
	return e.Err
}

// Encode maps raw bytes to padded standard base64.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode is the inverse of Encode.
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &MalformedEncodingError{Err: err}
	}
	return b, nil
}

// Buffer is a decoded, playable block of normalized samples, one slice per channel.
type Buffer struct {
	SampleRate int
	Channels   int
	Data       [][]float32
}

// Frames returns the per-channel sample count.
func (b Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration is the playback length of the buffer at its sample rate.
func (b Buffer) Duration() time.Duration {
	return FramesToDuration(b.Frames(), b.SampleRate)
}

// FramesToDuration converts a sample count at rate into wall time.
func FramesToDuration(frames int, rate int) time.Duration {
	if frames <= 0 || rate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// DecodeAudioData interprets b as interleaved little-endian s16 samples and
// normalizes each one by 1/32768. Trailing bytes that do not form a full
// frame are ignored.
func DecodeAudioData(b []byte, sampleRate int, channels int) (Buffer, error) {
	if sampleRate <= 0 {
		return Buffer{}, errors.New("sample rate must be > 0")
	}
	if channels <= 0 {
		return Buffer{}, errors.New("channel count must be > 0")
	}

	frames := len(b) / 2 / channels
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			offset := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(b[offset : offset+2]))
			data[ch][i] = float32(sample) / scale
		}
	}

	return Buffer{SampleRate: sampleRate, Channels: channels, Data: data}, nil
}

// FloatToPCM16 scales normalized samples by 32768, truncates toward zero, and
// writes them as little-endian s16. Values outside the representable range
// saturate instead of wrapping.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := math.Trunc(float64(s) * scale)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	default:
		return int16(v)
	}
}
