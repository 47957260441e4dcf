package samplebank

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"
)

type Format string

const (
	FormatWAV    Format = "wav"
	FormatMP3    Format = "mp3"
	FormatVorbis Format = "ogg"
)

var ErrUnsupportedFormat = errors.New("samplebank: unsupported sample format")

// FormatFromPath picks a decoder from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	case ".ogg", ".oga":
		return FormatVorbis, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Decode reads a whole clip and resamples it to sampleRate. The ebiten
// decoders emit 16-bit little endian stereo PCM.
func Decode(r io.Reader, format Format, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, errors.New("samplebank: sampleRate must be positive")
	}
	var (
		pcm io.Reader
		err error
	)
	switch format {
	case FormatWAV:
		pcm, err = wav.DecodeWithSampleRate(sampleRate, r)
	case FormatMP3:
		pcm, err = mp3.DecodeWithSampleRate(sampleRate, r)
	case FormatVorbis:
		pcm, err = vorbis.DecodeWithSampleRate(sampleRate, r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", format, err)
	}
	raw, err := io.ReadAll(pcm)
	if err != nil {
		return nil, fmt.Errorf("read %s pcm: %w", format, err)
	}
	return pcm16ToBuffer(raw, sampleRate), nil
}

func pcm16ToBuffer(raw []byte, sampleRate int) *Buffer {
	n := len(raw) / 4 * 2 // whole stereo frames only
	data := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		data[i] = float32(v) / 32768
	}
	return &Buffer{sampleRate: sampleRate, data: data}
}
