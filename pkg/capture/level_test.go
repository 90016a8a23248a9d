package capture_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/areufunny/areufunny/pkg/capture"
)

func TestLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		buf  []byte
		want float64
	}{
		{
			name: "empty buffer",
			buf:  nil,
			want: 0,
		},
		{
			name: "pure silence",
			buf:  bytes.Repeat([]byte{128}, 256),
			want: 0,
		},
		{
			name: "full positive clip",
			buf:  bytes.Repeat([]byte{255}, 256),
			want: 100,
		},
		{
			name: "full negative clip",
			buf:  bytes.Repeat([]byte{0}, 256),
			want: 100,
		},
		{
			// Symmetric ±13 deviation: 13/128 * 2.5 * 100.
			name: "moderate speech",
			buf:  bytes.Repeat([]byte{141, 115}, 128),
			want: 25.390625,
		},
		{
			// Mean deviation 64 boosts past 1.0 and clamps.
			name: "loud signal clamps",
			buf:  bytes.Repeat([]byte{192, 64}, 128),
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := capture.Level(tt.buf)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Level() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_AlwaysWithinBounds(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 256)
	for i := range buf {
		buf[i] = byte(i * 37)
	}
	for window := 1; window <= len(buf); window *= 2 {
		got := capture.Level(buf[:window])
		if got < 0 || got > 100 {
			t.Errorf("Level(window %d) = %v, want within [0, 100]", window, got)
		}
	}
}
