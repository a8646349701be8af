package speech

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"
)

const playbackFrames = 512

// Sink plays a decoded clip to completion.
type Sink interface {
	Play(ctx context.Context, clip Clip) error
}

// PortAudioSink writes clips to the default output device. The caller is
// responsible for portaudio.Initialize/Terminate around its lifetime.
type PortAudioSink struct{}

// Play streams the clip in fixed-size buffers and returns once the last
// buffer has been handed to the device, or earlier if ctx is canceled.
func (PortAudioSink) Play(ctx context.Context, clip Clip) error {
	if len(clip.PCM) == 0 {
		return nil
	}
	if clip.Channels <= 0 || clip.SampleRate <= 0 {
		return fmt.Errorf("playback: %d channels at %d Hz", clip.Channels, clip.SampleRate)
	}

	buf := make([]int16, playbackFrames*clip.Channels)
	stream, err := portaudio.OpenDefaultStream(0, clip.Channels, float64(clip.SampleRate), playbackFrames, buf)
	if err != nil {
		return fmt.Errorf("open playback stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start playback stream: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	pcm := clip.PCM
	for len(pcm) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := copy(buf, pcm)
		pcm = pcm[n:]
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}

		if err := stream.Write(); err != nil {
			// Underflow just means the device caught up with us.
			if err == portaudio.OutputUnderflowed {
				continue
			}
			return fmt.Errorf("write playback buffer: %w", err)
		}
	}
	return nil
}
