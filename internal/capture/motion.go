package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	// BlurKernel is the Gaussian kernel applied before differencing.
	BlurKernel = 21
	// PixelDelta is the grey-level change that marks a pixel as changed.
	PixelDelta = 25
)

// MotionDetector compares each frame with the previous one and reports
// whether enough of the picture changed.
type MotionDetector struct {
	percent  float64 // share of pixels, 0..100, that must change
	previous gocv.Mat
	primed   bool
	mu       sync.Mutex
}

// NewMotionDetector returns a detector that fires when more than percent of
// the pixels changed between consecutive frames.
func NewMotionDetector(percent float64) *MotionDetector {
	return &MotionDetector{
		percent:  percent,
		previous: gocv.NewMat(),
	}
}

// Detect reports motion against the previous frame and the changed share.
// The first frame only primes the detector and reports motion, so a caller
// gating expensive work never skips the very first frame.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Pt(BlurKernel, BlurKernel), 0, 0, gocv.BorderDefault)

	if !m.primed || m.previous.Rows() != gray.Rows() || m.previous.Cols() != gray.Cols() {
		gray.CopyTo(&m.previous)
		m.primed = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, m.previous, &diff)
	gocv.Threshold(diff, &diff, PixelDelta, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100
	gray.CopyTo(&m.previous)

	return changed > m.percent, changed
}

// Reset forgets the previous frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.previous.Close()
	m.previous = gocv.NewMat()
	m.primed = false
}

// Close releases the retained frame.
func (m *MotionDetector) Close() {
	m.Reset()
}
