// Package audio holds the sample-format conversions shared by capture
// engines. Device streams deliver float32 samples in [-1, 1]; the analyser
// surface wants 8-bit unsigned samples centred at 128 and the Opus encoder
// wants PCM int16. Out-of-range input is clipped, never wrapped.
package audio

// FloatToByte converts a [-1, 1] sample into the 8-bit unsigned analyser
// representation centred at 128.
func FloatToByte(s float32) byte {
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return byte(128 + s*127)
}

// FloatToInt16 converts a [-1, 1] sample to PCM int16.
func FloatToInt16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// FloatsToInt16 converts a whole frame into dst, which must be at least as
// long as src. Returns the number of samples written.
func FloatsToInt16(dst []int16, src []float32) int {
	n := min(len(dst), len(src))
	for i := 0; i < n; i++ {
		dst[i] = FloatToInt16(src[i])
	}
	return n
}
