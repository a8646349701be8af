package capture

// Silence gate thresholds over normalized [-1, 1] samples. Recordings
// below both are too quiet to contain speech and are rejected before any
// transcription round trip.
const (
	meanAmplitudeThreshold = 0.001
	peakAmplitudeThreshold = 0.01
)

// IsAudioValid reports whether the samples plausibly contain speech:
// mean absolute amplitude above 0.001 or peak absolute amplitude above
// 0.01. Empty input is never valid.
func IsAudioValid(samples []int16) bool {
	if len(samples) == 0 {
		return false
	}

	var sum float64
	var peak float64
	for _, s := range samples {
		v := float64(s) / 32768.0
		if v < 0 {
			v = -v
		}
		sum += v
		if v > peak {
			peak = v
		}
	}

	mean := sum / float64(len(samples))
	return mean > meanAmplitudeThreshold || peak > peakAmplitudeThreshold
}
