package tts

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// DecodeWAV parses a RIFF/WAVE container and returns the first channel as
// int16 PCM plus the sample rate. 16-bit PCM and 32-bit IEEE float data are
// supported; float samples are clipped to [-1, 1] before scaling.
func DecodeWAV(wav []byte) ([]int16, int, error) {
	if len(wav) < 12 {
		return nil, 0, errors.New("tts: WAV data too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return nil, 0, errors.New("tts: WAV data missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return nil, 0, errors.New("tts: WAV data missing WAVE identifier")
	}

	var (
		format     int
		channels   int
		sampleRate int
		bits       int
		foundFmt   bool
	)

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE
	// header. Chunks are word-aligned: odd sizes pad by one byte.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))
		body := offset + 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 || body+16 > len(wav) {
				return nil, 0, errors.New("tts: WAV fmt chunk truncated")
			}
			fmtData := wav[body:]
			format = int(binary.LittleEndian.Uint16(fmtData[0:2]))
			channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			bits = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			foundFmt = true
		case "data":
			if !foundFmt {
				return nil, 0, errors.New("tts: WAV data chunk precedes fmt chunk")
			}
			if body+chunkSize > len(wav) {
				chunkSize = len(wav) - body
			}
			samples, err := decodeWAVData(wav[body:body+chunkSize], format, channels, bits)
			if err != nil {
				return nil, 0, err
			}
			return samples, sampleRate, nil
		}

		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return nil, 0, errors.New("tts: WAV data missing data chunk")
}

func decodeWAVData(data []byte, format, channels, bits int) ([]int16, error) {
	if channels < 1 {
		return nil, fmt.Errorf("tts: WAV has invalid channel count %d", channels)
	}

	switch {
	case format == wavFormatPCM && bits == 16:
		frameBytes := 2 * channels
		n := len(data) / frameBytes
		samples := make([]int16, n)
		for i := range n {
			samples[i] = int16(binary.LittleEndian.Uint16(data[i*frameBytes:]))
		}
		return samples, nil

	case format == wavFormatFloat && bits == 32:
		frameBytes := 4 * channels
		n := len(data) / frameBytes
		samples := make([]int16, n)
		for i := range n {
			f := math.Float32frombits(binary.LittleEndian.Uint32(data[i*frameBytes:]))
			if f > 1 {
				f = 1
			} else if f < -1 {
				f = -1
			}
			samples[i] = int16(f * 32767)
		}
		return samples, nil

	default:
		return nil, fmt.Errorf("tts: unsupported WAV encoding (format %d, %d-bit)", format, bits)
	}
}
