// Package audio provides PCM helpers for synthesized speech artifacts.
//
// Synthesis providers emit raw little-endian PCM16; artifacts are stored
// as standard RIFF/WAVE files so any player can open them.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrOddPCMLength is returned when a PCM16 buffer has a trailing half sample.
var ErrOddPCMLength = errors.New("audio: PCM16 buffer length must be even")

const (
	wavHeaderSize = 44
	bitsPerSample = 16
)

// WriteWAV writes a mono PCM16 buffer as a WAVE file.
// The header is computed from the buffer length, so the buffer must be
// complete before calling.
func WriteWAV(w io.Writer, pcm []byte, sampleRate int) error {
	if len(pcm)%2 != 0 {
		return ErrOddPCMLength
	}
	if sampleRate <= 0 {
		return fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	const channels = 1
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(wavHeaderSize-8+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("audio: write header: %w", err)
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("audio: write samples: %w", err)
	}
	return nil
}

// SampleCount returns the number of PCM16 samples in a raw buffer.
func SampleCount(pcm []byte) int {
	return len(pcm) / 2
}

// Duration returns the playback length in seconds of a mono PCM16 buffer.
func Duration(pcm []byte, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(SampleCount(pcm)) / float64(sampleRate)
}
