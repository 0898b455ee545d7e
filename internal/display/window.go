package display

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/detector"
)

// Frames supplies the most recent camera frame and hands for the overlay.
// classifier.CameraSource satisfies it.
type Frames interface {
	LatestFrame() (*gocv.Mat, error)
	LatestHands() []detector.HandLandmarks
}

// ErrQuit is returned by Window.Run when the user presses 'q'.
var ErrQuit = errors.New("quit requested from window")

var (
	colorText     = color.RGBA{R: 255, G: 255, B: 255, A: 0}
	colorOnline   = color.RGBA{R: 0, G: 200, B: 0, A: 0}
	colorOffline  = color.RGBA{R: 220, G: 0, B: 0, A: 0}
	colorLandmark = color.RGBA{R: 0, G: 220, B: 255, A: 0}
)

// Window draws the status over the camera image in an OpenCV window.
// Show only records the status; Run does the drawing and must be called
// from the main goroutine, as the GUI toolkits behind OpenCV require.
type Window struct {
	title  string
	frames Frames

	mu     sync.Mutex
	status Status
}

// RefreshInterval is the window redraw period, also its key polling period.
const RefreshInterval = 33 * time.Millisecond

// NewWindow prepares a window titled title. frames may be nil, in which case
// the overlay is drawn on a black canvas.
func NewWindow(title string, frames Frames) *Window {
	return &Window{title: title, frames: frames}
}

// Show implements Display.
func (w *Window) Show(s Status) {
	w.mu.Lock()
	w.status = s
	w.mu.Unlock()
}

// Run opens the window and redraws it until ctx is done or 'q' is pressed,
// in which case it returns ErrQuit.
func (w *Window) Run(ctx context.Context) error {
	win := gocv.NewWindow(w.title)
	defer win.Close()

	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 480, 640, gocv.MatTypeCV8UC3)
	defer blank.Close()

	for ctx.Err() == nil {
		w.mu.Lock()
		s := w.status
		w.mu.Unlock()

		img := w.render(s, blank)
		win.IMShow(img)
		img.Close()

		if key := win.WaitKey(int(RefreshInterval / time.Millisecond)); key == 'q' || key == 'Q' {
			return ErrQuit
		}
	}
	return nil
}

func (w *Window) render(s Status, blank gocv.Mat) gocv.Mat {
	img := w.canvas(blank)

	if w.frames != nil {
		for _, hand := range w.frames.LatestHands() {
			drawHand(&img, hand)
		}
	}

	for i, line := range overlayLines(s) {
		c := colorText
		if i == 2 {
			c = linkColor(s.Connected)
		}
		gocv.PutText(&img, line, image.Pt(10, 30+i*30), gocv.FontHersheySimplex, 0.7, c, 2)
	}
	return img
}

// linkColor is green while the broker is connected and red otherwise.
func linkColor(connected bool) color.RGBA {
	if connected {
		return colorOnline
	}
	return colorOffline
}

func (w *Window) canvas(blank gocv.Mat) gocv.Mat {
	if w.frames != nil {
		if frame, err := w.frames.LatestFrame(); err == nil && frame != nil {
			if !frame.Empty() {
				return *frame
			}
			frame.Close()
		}
	}
	return blank.Clone()
}

func drawHand(img *gocv.Mat, hand detector.HandLandmarks) {
	width, height := img.Cols(), img.Rows()
	for _, p := range hand.Points {
		pt := image.Pt(int(p.X*float64(width)), int(p.Y*float64(height)))
		gocv.Circle(img, pt, 4, colorLandmark, -1)
	}
}

// overlayLines renders the text drawn on the window.
func overlayLines(s Status) []string {
	fingers := "-"
	if s.Observation.Detected {
		fingers = fmt.Sprint(s.Observation.Count)
	}

	brightness := "-"
	if s.HasPublish {
		brightness = fmt.Sprintf("%d%%", s.Last.Percent())
	}

	mqtt := "MQTT: offline"
	if s.Connected {
		mqtt = "MQTT: connected"
	}

	lines := []string{
		"Fingers: " + fingers,
		"Brightness: " + brightness,
		mqtt,
	}
	if s.Paused {
		lines = append(lines, "Paused")
	}
	return append(lines, "Press 'q' to quit")
}
