package voice

import (
	"encoding/binary"
	"fmt"
	"time"
)

const wavHeaderSize = 44

// EncodeWAV wraps PCM16 mono samples in a RIFF/WAVE container, the format
// the speech recognizers accept.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataSize := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], 1)  // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], 16)                   // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf
}

// WAVInfo is the header summary used for boundary validation.
type WAVInfo struct {
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// ParseWAVInfo reads the container header of a PCM WAV blob. Compressed
// or non-PCM containers are rejected; conversion is the client's job.
func ParseWAVInfo(data []byte) (WAVInfo, error) {
	if len(data) < wavHeaderSize {
		return WAVInfo{}, fmt.Errorf("audio too short for a WAV header (%d bytes)", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, fmt.Errorf("not a RIFF/WAVE container")
	}
	if format := binary.LittleEndian.Uint16(data[20:22]); format != 1 {
		return WAVInfo{}, fmt.Errorf("unsupported WAV format %d, expected PCM", format)
	}

	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	bitsPerSample := int(binary.LittleEndian.Uint16(data[34:36]))
	if channels == 0 || sampleRate == 0 || bitsPerSample == 0 {
		return WAVInfo{}, fmt.Errorf("malformed WAV header")
	}

	dataSize := len(data) - wavHeaderSize
	bytesPerSecond := sampleRate * channels * bitsPerSample / 8
	duration := time.Duration(dataSize) * time.Second / time.Duration(bytesPerSecond)

	return WAVInfo{SampleRate: sampleRate, Channels: channels, Duration: duration}, nil
}
