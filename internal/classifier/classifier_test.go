package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/stability"
)

func TestParseScript(t *testing.T) {
	steps, err := ParseScript(`
# warm-up
- 1 1,1
0	2
`)
	require.NoError(t, err)
	assert.Equal(t, []stability.Observation{
		stability.Absent(),
		stability.Count(1),
		stability.Count(1),
		stability.Count(1),
		stability.Count(0),
		stability.Count(2),
	}, steps)
}

func TestParseScript_Invalid(t *testing.T) {
	for _, text := range []string{"1 x 2", "-3", "1.5"} {
		_, err := ParseScript(text)
		assert.Error(t, err, "script %q", text)
	}
}

func TestScriptSource_Playback(t *testing.T) {
	src := NewScriptSource([]stability.Observation{stability.Count(3), stability.Absent()})
	ctx := context.Background()

	o, err := src.Observe(ctx)
	require.NoError(t, err)
	assert.Equal(t, stability.Count(3), o)
	assert.Equal(t, 1, src.Remaining())

	o, err = src.Observe(ctx)
	require.NoError(t, err)
	assert.False(t, o.Detected)

	_, err = src.Observe(ctx)
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestScriptSource_Close(t *testing.T) {
	src := NewScriptSource([]stability.Observation{stability.Count(1)})
	require.NoError(t, src.Close())

	_, err := src.Observe(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestScriptSource_CancelledContext(t *testing.T) {
	src := NewScriptSource([]stability.Observation{stability.Count(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Observe(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.Remaining())
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.txt")
	require.NoError(t, os.WriteFile(path, []byte("- 5 5\n"), 0644))

	src, err := LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, 3, src.Remaining())

	_, err = LoadScript(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestCameraSource_CountsFirstHand(t *testing.T) {
	cam := capture.NewBlankCamera(4)
	defer cam.Release()

	det := detector.NewMockDetector()
	det.SetSequence([][]detector.HandLandmarks{
		nil,
		{detector.FingersLandmarks(3)},
		{detector.FingersLandmarks(1), detector.OpenPalmLandmarks()},
		{detector.ThumbsUpLandmarks()},
	})

	src, err := NewCameraSource(cam, det, CameraConfig{Mirror: true})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	want := []stability.Observation{
		stability.Absent(),
		stability.Count(3),
		stability.Count(1),
		stability.Count(0),
	}
	for i, w := range want {
		got, err := src.Observe(ctx)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, w, got, "frame %d", i)
	}

	frame, err := src.LatestFrame()
	require.NoError(t, err)
	assert.Equal(t, capture.DefaultWidth, frame.Cols())
	frame.Close()

	assert.Len(t, src.LatestHands(), 1)

	_, err = src.Observe(ctx)
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestCameraSource_DetectErrorIsTransient(t *testing.T) {
	cam := capture.NewBlankCamera(0)
	defer cam.Release()

	det := detector.NewMockDetector()
	det.SetError(errors.New("pipe broke"))

	src, err := NewCameraSource(cam, det, CameraConfig{})
	require.NoError(t, err)
	defer src.Close()

	_, err = src.Observe(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSourceClosed)
}

func TestCameraSource_GivesUpOnBrokenDetector(t *testing.T) {
	cam := capture.NewBlankCamera(0)
	defer cam.Release()

	det := detector.NewMockDetector()
	det.SetError(errors.New("broken pipe"))

	src, err := NewCameraSource(cam, det, CameraConfig{MaxReadFailures: 10})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	for i := 0; i < 9; i++ {
		_, err := src.Observe(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSourceClosed, "attempt %d", i)
	}

	_, err = src.Observe(ctx)
	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.Equal(t, 10, det.Calls())
}

func TestCameraSource_DetectSuccessResetsFailures(t *testing.T) {
	cam := capture.NewBlankCamera(0)
	defer cam.Release()

	det := detector.NewMockDetector()
	src, err := NewCameraSource(cam, det, CameraConfig{MaxReadFailures: 3})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	for round := 0; round < 3; round++ {
		det.SetError(errors.New("broken pipe"))
		for i := 0; i < 2; i++ {
			_, err := src.Observe(ctx)
			assert.NotErrorIs(t, err, ErrSourceClosed, "round %d attempt %d", round, i)
		}

		det.SetError(nil)
		obs, err := src.Observe(ctx)
		require.NoError(t, err)
		assert.False(t, obs.Detected)
	}
}

// flakyCamera fails every read.
type flakyCamera struct {
	capture.MockCamera
}

func (c *flakyCamera) ReadFrame() (*gocv.Mat, error) {
	return nil, errors.New("device busy")
}

func TestCameraSource_GivesUpAfterRepeatedFailures(t *testing.T) {
	cam := &flakyCamera{}
	src, err := NewCameraSource(cam, detector.NewMockDetector(), CameraConfig{MaxReadFailures: 3})
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := src.Observe(ctx)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrSourceClosed, "attempt %d", i)
	}

	_, err = src.Observe(ctx)
	assert.ErrorIs(t, err, ErrSourceClosed)
}

func TestCameraSource_CloseReleasesCollaborators(t *testing.T) {
	cam := capture.NewBlankCamera(1)
	defer cam.Release()
	det := detector.NewMockDetector()

	src, err := NewCameraSource(cam, det, CameraConfig{})
	require.NoError(t, err)
	assert.True(t, cam.IsOpen())

	require.NoError(t, src.Close())
	assert.False(t, cam.IsOpen())
	assert.True(t, det.Closed())

	_, err = src.LatestFrame()
	assert.Error(t, err)
}

func TestSourcesImplementInterface(t *testing.T) {
	var _ Source = (*CameraSource)(nil)
	var _ Source = (*ScriptSource)(nil)
}

func TestCameraSource_StillEmptySceneSkipsDetector(t *testing.T) {
	cam := capture.NewBlankCamera(0)
	defer cam.Release()
	det := detector.NewMockDetector()

	src, err := NewCameraSource(cam, det, CameraConfig{MotionThreshold: 1.0})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		got, err := src.Observe(ctx)
		require.NoError(t, err)
		assert.Equal(t, stability.Absent(), got)
	}

	// only the priming frame reached the detector
	assert.Equal(t, 1, det.Calls())

	frame, err := src.LatestFrame()
	require.NoError(t, err)
	frame.Close()
}

func TestCameraSource_HandKeepsDetectorRunning(t *testing.T) {
	cam := capture.NewBlankCamera(0)
	defer cam.Release()
	det := detector.NewMockDetector()
	det.SetHands([]detector.HandLandmarks{detector.FingersLandmarks(2)})

	src, err := NewCameraSource(cam, det, CameraConfig{MotionThreshold: 1.0})
	require.NoError(t, err)
	defer src.Close()

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		got, err := src.Observe(ctx)
		require.NoError(t, err)
		assert.Equal(t, stability.Count(2), got)
	}
	assert.Equal(t, 4, det.Calls())
}
