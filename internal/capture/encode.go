package capture

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/hraban/opus"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Supported encoding MIME types, in the shape the transcription service
// expects on upload.
const (
	MIMEOggOpus = "audio/ogg; codecs=opus"
	MIMEWav     = "audio/wav"
)

// DefaultPreference is the ordered container/codec preference list. Opus
// in Ogg is preferred; WAV is the always-available fallback.
var DefaultPreference = []string{MIMEOggOpus, MIMEWav}

// ErrNoEncoder means no entry of the preference list can encode at the
// track's sample rate.
var ErrNoEncoder = errors.New("no supported audio encoding")

// Encoder turns PCM16 mono samples into a self-contained audio payload.
type Encoder interface {
	MIME() string
	FileExt() string
	Encode(pcm []int16, sampleRate int) ([]byte, error)
}

// SelectEncoder walks the preference list and returns the first encoder
// that supports the sample rate, recording the chosen MIME for later
// chunk assembly.
func SelectEncoder(preference []string, sampleRate int) (Encoder, error) {
	if len(preference) == 0 {
		preference = DefaultPreference
	}
	for _, mime := range preference {
		switch mime {
		case MIMEOggOpus:
			if opusSupportsRate(sampleRate) {
				return oggOpusEncoder{}, nil
			}
		case MIMEWav:
			return wavEncoder{}, nil
		}
	}
	return nil, fmt.Errorf("%w for %d Hz (tried %v)", ErrNoEncoder, sampleRate, preference)
}

// Opus accepts a fixed set of sample rates.
func opusSupportsRate(rate int) bool {
	switch rate {
	case 8000, 12000, 16000, 24000, 48000:
		return true
	}
	return false
}

type oggOpusEncoder struct{}

func (oggOpusEncoder) MIME() string    { return MIMEOggOpus }
func (oggOpusEncoder) FileExt() string { return ".ogg" }

// Encode runs the samples through libopus in 20 ms frames and pages the
// packets into an Ogg container.
func (oggOpusEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	enc, err := opus.NewEncoder(sampleRate, 1, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	var out bytes.Buffer
	ogg, err := oggwriter.NewWith(&out, uint32(sampleRate), 1)
	if err != nil {
		return nil, fmt.Errorf("create ogg writer: %w", err)
	}

	frameSize := sampleRate / 50 // 20 ms
	packet := make([]byte, 4000)
	frame := make([]int16, frameSize)

	var seq uint16
	var ts uint32
	for off := 0; off < len(pcm); off += frameSize {
		end := off + frameSize
		if end > len(pcm) {
			end = len(pcm)
		}
		n := copy(frame, pcm[off:end])
		for i := n; i < frameSize; i++ {
			frame[i] = 0
		}

		written, err := enc.Encode(frame, packet)
		if err != nil {
			_ = ogg.Close()
			return nil, fmt.Errorf("opus encode: %w", err)
		}

		rtpPacket := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    111,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           1,
			},
			Payload: append([]byte(nil), packet[:written]...),
		}
		if err := ogg.WriteRTP(rtpPacket); err != nil {
			_ = ogg.Close()
			return nil, fmt.Errorf("write ogg page: %w", err)
		}
		seq++
		ts += uint32(frameSize)
	}

	if err := ogg.Close(); err != nil {
		return nil, fmt.Errorf("finish ogg stream: %w", err)
	}
	return out.Bytes(), nil
}

type wavEncoder struct{}

func (wavEncoder) MIME() string    { return MIMEWav }
func (wavEncoder) FileExt() string { return ".wav" }

func (wavEncoder) Encode(pcm []int16, sampleRate int) ([]byte, error) {
	var data bytes.Buffer
	data.Grow(len(pcm) * 2)
	if err := binary.Write(&data, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("write pcm payload: %w", err)
	}

	header, err := wavHeader(data.Len(), sampleRate, 1, 16)
	if err != nil {
		return nil, fmt.Errorf("build wav header: %w", err)
	}

	out := make([]byte, 0, len(header)+data.Len())
	out = append(out, header...)
	out = append(out, data.Bytes()...)
	return out, nil
}

func wavHeader(dataSize, sampleRate, channels, bitDepth int) ([]byte, error) {
	byteRate := sampleRate * channels * bitDepth / 8
	blockAlign := channels * bitDepth / 8
	chunkSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44))
	if _, err := buf.WriteString("RIFF"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(chunkSize)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("WAVE"); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("fmt "); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(16)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(1)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(channels)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(byteRate)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(blockAlign)); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint16(bitDepth)); err != nil {
		return nil, err
	}
	if _, err := buf.WriteString("data"); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(dataSize)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
