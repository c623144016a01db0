// Package track derives simple statistics from data-frame pixels: per-frame
// centroid and spread, and an exponentially smoothed head point for consumers
// that want a stable cursor. Pure computation, no device coupling.
package track

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/headtrack/internal/trackir"
)

// Stats summarizes the blobs of a single data frame.
type Stats struct {
	Count     int     `json:"count"`
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
	SpreadX   float64 `json:"spread_x"`
	SpreadY   float64 `json:"spread_y"`
}

// FrameStats computes the centroid and spread of one frame's pixels. An
// empty frame yields the zero Stats.
func FrameStats(pixels []trackir.Pixel) Stats {
	if len(pixels) == 0 {
		return Stats{}
	}

	xs := make([]float64, len(pixels))
	ys := make([]float64, len(pixels))
	for i, p := range pixels {
		xs[i] = float64(p.X)
		ys[i] = float64(p.Y)
	}

	s := Stats{
		Count:     len(pixels),
		CentroidX: stat.Mean(xs, nil),
		CentroidY: stat.Mean(ys, nil),
	}
	// StdDev needs two samples; a single blob has zero spread.
	if len(pixels) > 1 {
		s.SpreadX = stat.StdDev(xs, nil)
		s.SpreadY = stat.StdDev(ys, nil)
	}
	return s
}

// Smoother holds an exponential moving average of the frame centroid. Higher
// alpha follows the raw centroid more closely; lower alpha damps sensor
// jitter harder.
type Smoother struct {
	alpha  float64
	x, y   float64
	seeded bool
}

// NewSmoother clamps alpha into (0, 1].
func NewSmoother(alpha float64) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &Smoother{alpha: alpha}
}

// Update folds one frame's stats into the average and returns the smoothed
// point. Empty frames leave the estimate unchanged.
func (s *Smoother) Update(st Stats) (x, y float64) {
	if st.Count == 0 {
		return s.x, s.y
	}
	if !s.seeded {
		s.x, s.y = st.CentroidX, st.CentroidY
		s.seeded = true
		return s.x, s.y
	}
	s.x += s.alpha * (st.CentroidX - s.x)
	s.y += s.alpha * (st.CentroidY - s.y)
	return s.x, s.y
}
