package voice

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// MicSampleRate is the capture rate expected by the remote voice model.
	MicSampleRate = 16000
	// PlaybackSampleRate is the rate of audio returned by the remote voice model.
	PlaybackSampleRate = 24000
	// MicFrameSamples is the capture buffer size, 128ms at 16kHz.
	MicFrameSamples = 2048
	// MicMIMEType labels captured audio.
	MicMIMEType = "audio/pcm;rate=16000"
)

// EncodePCM16 converts float samples to 16-bit little-endian PCM, clamping to [-1, 1].
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// EncodeMicFrame encodes one capture buffer as base64 PCM and returns it with its MIME type.
func EncodeMicFrame(samples []float32) (string, string) {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples)), MicMIMEType
}

// DecodePCM16Bytes converts 16-bit little-endian PCM to float samples in [-1, 1).
// A trailing odd byte is ignored.
func DecodePCM16Bytes(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// DecodePCM16 decodes base64 16-bit PCM to float samples.
func DecodePCM16(data string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio: %w", err)
	}
	return DecodePCM16Bytes(pcm), nil
}

// FrameDuration returns the playing time of n samples at the given rate.
func FrameDuration(samples, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// PCMDuration returns the playing time of a 16-bit mono PCM byte slice.
func PCMDuration(pcm []byte, rate int) time.Duration {
	return FrameDuration(len(pcm)/2, rate)
}
