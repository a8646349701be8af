package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Clip is decoded PCM16-LE audio ready for a playback sink.
type Clip struct {
	PCM        []int16
	SampleRate int
	Channels   int
}

// Duration of the clip in seconds.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 || c.Channels <= 0 {
		return 0
	}
	return float64(len(c.PCM)) / float64(c.SampleRate*c.Channels)
}

// DecodeWAV parses a RIFF/WAVE payload into PCM samples. Only PCM16 is
// accepted; the synthesis backend always emits it.
func DecodeWAV(data []byte) (Clip, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, fmt.Errorf("not a RIFF/WAVE payload")
	}

	var (
		sampleRate int
		channels   int
		bitDepth   int
		haveFmt    bool
		pcmBytes   []byte
	)

	// Walk the chunk list; unknown chunks are skipped.
	rest := data[12:]
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		rest = rest[8:]
		if size > len(rest) {
			size = len(rest)
		}
		body := rest[:size]

		switch id {
		case "fmt ":
			if len(body) < 16 {
				return Clip{}, fmt.Errorf("wav fmt chunk truncated")
			}
			format := binary.LittleEndian.Uint16(body[0:2])
			if format != 1 {
				return Clip{}, fmt.Errorf("unsupported wav format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitDepth = int(binary.LittleEndian.Uint16(body[14:16]))
			haveFmt = true
		case "data":
			pcmBytes = body
		}

		// Chunks are word-aligned.
		if size%2 == 1 {
			size++
		}
		if size > len(rest) {
			size = len(rest)
		}
		rest = rest[size:]
	}

	if !haveFmt {
		return Clip{}, fmt.Errorf("wav missing fmt chunk")
	}
	if pcmBytes == nil {
		return Clip{}, fmt.Errorf("wav missing data chunk")
	}
	if bitDepth != 16 {
		return Clip{}, fmt.Errorf("unsupported wav bit depth %d", bitDepth)
	}
	if channels <= 0 || sampleRate <= 0 {
		return Clip{}, fmt.Errorf("wav header has %d channels at %d Hz", channels, sampleRate)
	}

	pcm := make([]int16, len(pcmBytes)/2)
	if err := binary.Read(bytes.NewReader(pcmBytes[:len(pcm)*2]), binary.LittleEndian, pcm); err != nil {
		return Clip{}, fmt.Errorf("decode wav samples: %w", err)
	}

	return Clip{PCM: pcm, SampleRate: sampleRate, Channels: channels}, nil
}
