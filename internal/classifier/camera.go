package classifier

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/stability"
)

// DefaultMaxReadFailures is how many consecutive failed observations, frame
// reads or hand detections, a camera source tolerates before it reports
// itself closed.
const DefaultMaxReadFailures = 100

// CameraConfig configures a CameraSource.
type CameraConfig struct {
	// Mirror flips frames horizontally before detection, like a selfie view.
	Mirror bool
	// MaxReadFailures bounds consecutive read or detect errors. Zero uses
	// DefaultMaxReadFailures; a negative value never gives up.
	MaxReadFailures int
	// MotionThreshold, when positive, lets a still scene with no hand in
	// the previous frame skip hand detection. It is the share of pixels
	// (percent) that must change between frames to count as motion.
	MotionThreshold float64
}

// CameraSource counts raised fingers on the first hand found in each frame.
type CameraSource struct {
	camera   capture.Camera
	detector detector.Detector
	config   CameraConfig
	failures int

	motion  *capture.MotionDetector
	sawHand bool

	mu     sync.Mutex
	latest *gocv.Mat
	hands  []detector.HandLandmarks
}

// NewCameraSource opens cam and returns a source reading from it.
func NewCameraSource(cam capture.Camera, d detector.Detector, config CameraConfig) (*CameraSource, error) {
	if config.MaxReadFailures == 0 {
		config.MaxReadFailures = DefaultMaxReadFailures
	}
	if err := cam.Open(); err != nil {
		return nil, fmt.Errorf("open camera: %w", err)
	}
	s := &CameraSource{
		camera:   cam,
		detector: d,
		config:   config,
	}
	if config.MotionThreshold > 0 {
		s.motion = capture.NewMotionDetector(config.MotionThreshold)
	}
	return s, nil
}

// Observe reads one frame and classifies it.
func (s *CameraSource) Observe(ctx context.Context) (stability.Observation, error) {
	if err := ctx.Err(); err != nil {
		return stability.Absent(), err
	}

	frame, err := s.camera.ReadFrame()
	if err != nil {
		if errors.Is(err, capture.ErrEndOfStream) || errors.Is(err, capture.ErrCameraNotOpen) {
			return stability.Absent(), fmt.Errorf("%w: %v", ErrSourceClosed, err)
		}
		return stability.Absent(), s.failed("read frame", err)
	}

	if s.config.Mirror {
		gocv.Flip(*frame, frame, 1)
	}

	// A hand entering the picture is motion, so a still empty scene stays empty.
	if s.motion != nil && !s.sawHand {
		if moved, _ := s.motion.Detect(frame); !moved {
			s.keep(frame, nil)
			s.failures = 0
			return stability.Absent(), nil
		}
	}

	hands, err := s.detector.Detect(frame)
	s.keep(frame, hands)
	if err != nil {
		s.sawHand = false
		return stability.Absent(), s.failed("detect hands", err)
	}
	s.failures = 0

	s.sawHand = len(hands) > 0
	if len(hands) == 0 {
		return stability.Absent(), nil
	}
	return stability.Count(hands[0].CountFingers()), nil
}

// failed counts a transient failure and turns it into ErrSourceClosed once
// MaxReadFailures happen in a row, so a dead device or detector ends the loop.
func (s *CameraSource) failed(op string, err error) error {
	s.failures++
	if s.config.MaxReadFailures > 0 && s.failures >= s.config.MaxReadFailures {
		return fmt.Errorf("%w: %d consecutive failures, last %s: %v", ErrSourceClosed, s.failures, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// keep stores the latest frame for the overlay and the MJPEG stream,
// taking ownership of frame.
func (s *CameraSource) keep(frame *gocv.Mat, hands []detector.HandLandmarks) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest != nil {
		s.latest.Close()
	}
	s.latest = frame
	s.hands = hands
}

// LatestFrame returns a copy of the most recent frame. The caller must close it.
func (s *CameraSource) LatestFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latest == nil || s.latest.Empty() {
		return nil, capture.ErrEmptyFrame
	}
	clone := s.latest.Clone()
	return &clone, nil
}

// LatestHands returns the landmarks detected on the most recent frame.
func (s *CameraSource) LatestHands() []detector.HandLandmarks {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]detector.HandLandmarks, len(s.hands))
	copy(out, s.hands)
	return out
}

// Close releases the camera, the detector and the retained frame.
func (s *CameraSource) Close() error {
	s.mu.Lock()
	if s.latest != nil {
		s.latest.Close()
		s.latest = nil
	}
	s.mu.Unlock()

	if s.motion != nil {
		s.motion.Close()
	}
	return errors.Join(s.camera.Close(), s.detector.Close())
}
