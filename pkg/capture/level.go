package capture

// levelBoost is the sensitivity factor applied to the raw mean deviation so
// that ordinary speech registers visibly on the meter.
const levelBoost = 2.5

// Level reduces one analyser buffer of 8-bit unsigned time-domain samples
// to a single loudness value in [0, 100].
//
// The raw measure is the mean absolute deviation from the 128 zero-point,
// scaled by a fixed sensitivity boost and clamped before normalisation, so
// the return value stays inside [0, 100] even for fully clipped input.
// An empty buffer yields 0.
func Level(buf []byte) float64 {
	if len(buf) == 0 {
		return 0
	}
	var sum float64
	for _, b := range buf {
		d := float64(b) - 128
		if d < 0 {
			d = -d
		}
		sum += d
	}
	mean := sum / float64(len(buf))

	// 128 is the maximum possible deviation for 8-bit unsigned samples.
	norm := mean / 128 * levelBoost
	if norm > 1 {
		norm = 1
	}
	return norm * 100
}

// waveform is the append-only amplitude accumulator owned by a [Session]
// for the duration of one capture. It is not safe for concurrent use; the
// session serialises all access under its own lock.
type waveform struct {
	samples []float64
}

// reset discards any samples carried over from a previous (possibly
// aborted) capture.
func (w *waveform) reset() {
	w.samples = nil
}

// append records one sample.
func (w *waveform) append(v float64) {
	w.samples = append(w.samples, v)
}

// take hands off the collected sequence and clears the accumulator, so a
// sample produced after hand-off can never mutate a delivered snapshot.
func (w *waveform) take() []float64 {
	s := w.samples
	w.samples = nil
	if s == nil {
		return []float64{}
	}
	return s
}

// length returns the number of samples collected so far.
func (w *waveform) length() int {
	return len(w.samples)
}
