package camera

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SPAIA/xiao-sense/pkg/helper"
)

// State names the capture state machine's position, exposed for status
// reporting.
type State int32

const (
	StateIdle State = iota
	StateSwitchingHigh
	StateCapturing
	StatePersisting
	StateSwitchingLow
)

var stateNames = [...]string{
	StateIdle:          "idle",
	StateSwitchingHigh: "switching-high",
	StateCapturing:     "capturing",
	StatePersisting:    "persisting",
	StateSwitchingLow:  "switching-low",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

const (
	reinitAttempts     = 3
	defaultReinitDelay = 100 * time.Millisecond
	defaultJPEGQuality = 90
	scratchBlockSize   = 256 * 1024
)

// Writer is the slice of the storage collaborator the state machine needs.
type Writer interface {
	WriteFile(path string, data []byte) error
	Remove(path string) error
}

// Notifier is told about every persisted capture.
type Notifier interface {
	NotifyNewFile(path string) error
}

// MotionDetector consumes one grayscale frame and reports whether motion
// was confirmed.
type MotionDetector interface {
	Detect(pixels []byte, width, height int) (bool, time.Time)
}

// Trap owns the physical sensor's mode and runs the
// detect/switch/capture/persist/restore cycle. A single lock serializes all
// sensor access; the motion poll and the high-res capture path never run
// concurrently.
type Trap struct {
	mu       sync.Mutex
	sensor   Sensor
	det      MotionDetector
	store    Writer
	notifier Notifier

	lowMode  Mode
	highMode Mode
	dir      string

	jpegQuality int
	reinitDelay time.Duration
	state       atomic.Int32

	log *logrus.Entry
}

// New wires a capture state machine. dir is the directory persisted images
// land in.
func New(sensor Sensor, det MotionDetector, store Writer, notifier Notifier, lowMode, highMode Mode, dir string) *Trap {
	return &Trap{
		sensor:      sensor,
		det:         det,
		store:       store,
		notifier:    notifier,
		lowMode:     lowMode,
		highMode:    highMode,
		dir:         dir,
		jpegQuality: defaultJPEGQuality,
		reinitDelay: defaultReinitDelay,
		log:         logrus.WithField("component", "camera"),
	}
}

// State returns the current state machine position.
func (t *Trap) State() State {
	return State(t.state.Load())
}

func (t *Trap) setState(s State) {
	t.state.Store(int32(s))
}

// PollMotion grabs one low-res frame and runs motion detection. The call
// never blocks: when the sensor is busy it reports "no motion this tick".
// On a positive detection the capture lock is deliberately kept; ownership
// of "capture now" passes to the caller, which must invoke Capture.
func (t *Trap) PollMotion() (bool, time.Time) {
	if !t.mu.TryLock() {
		return false, time.Time{}
	}

	if err := t.sensor.Power(true); err != nil {
		t.log.WithError(err).Warn("sensor power-on failed")
		t.mu.Unlock()
		return false, time.Time{}
	}

	frame, err := t.sensor.Frame()
	if err != nil {
		t.log.WithError(err).Warn("low-res grab failed")
		t.powerOff()
		t.mu.Unlock()
		return false, time.Time{}
	}

	detected, ts := t.det.Detect(frame.Pixels, frame.Width, frame.Height)
	t.sensor.Release(frame)

	if !detected {
		t.powerOff()
		t.mu.Unlock()
		return false, time.Time{}
	}
	// Lock stays held and the sensor stays powered across the
	// detection -> capture hand-off.
	return true, ts
}

// Capture runs the high-res capture cycle for a detection returned by
// PollMotion. It takes over the lock PollMotion kept and releases it exactly
// once, on every exit path.
func (t *Trap) Capture(ts time.Time) error {
	defer t.mu.Unlock()
	return t.captureLocked(ts)
}

// CaptureNow runs a full capture cycle on demand, blocking until the sensor
// is free. Capture must not be skipped once requested.
func (t *Trap) CaptureNow() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.captureLocked(time.Now())
}

func (t *Trap) captureLocked(ts time.Time) error {
	prof := Profile{Detected: ts}

	if err := t.sensor.Power(true); err != nil {
		return fmt.Errorf("camera: sensor power-on: %w", err)
	}
	defer t.powerOff()

	t.setState(StateSwitchingHigh)
	defragHint()
	if err := t.switchMode(t.highMode); err != nil {
		t.restoreAndIdle()
		return fmt.Errorf("camera: high-res switch: %w", err)
	}
	prof.ModeReady = time.Now()

	t.setState(StateCapturing)
	data, res, err := t.captureWithFallback()
	if err != nil {
		t.restoreAndIdle()
		return err
	}
	prof.FrameReady = time.Now()

	t.setState(StatePersisting)
	path := filepath.Join(t.dir, fmt.Sprintf("%d.jpg", ts.Unix()))
	if err := t.store.WriteFile(path, data); err != nil {
		// Drop any partial output; the capture is abandoned.
		if rerr := t.store.Remove(path); rerr != nil {
			t.log.WithError(rerr).Warn("could not remove partial capture")
		}
		t.restoreAndIdle()
		return fmt.Errorf("camera: persist %s: %w", path, err)
	}
	prof.FileWritten = time.Now()

	if t.notifier != nil {
		if err := t.notifier.NotifyNewFile(path); err != nil {
			t.log.WithError(err).Warn("upload notification failed")
		}
	}

	restoreErr := t.restoreAndIdle()
	t.log.WithFields(prof.Fields()).WithFields(logrus.Fields{
		"file":       path,
		"resolution": res.String(),
	}).Info("capture cycle complete")
	return restoreErr
}

// captureWithFallback grabs a validated still, walking down the standard
// resolution ladder when the requested size fails. It never raises
// resolution mid-fallback.
func (t *Trap) captureWithFallback() ([]byte, Resolution, error) {
	var lastErr error
	for i, res := range FallbackFrom(t.highMode.Res) {
		if i > 0 {
			t.log.Warnf("falling back to %s", res)
			if err := t.switchMode(Mode{Res: res, Fmt: t.highMode.Fmt}); err != nil {
				lastErr = err
				continue
			}
		}
		data, err := t.grabStill()
		if err == nil {
			return data, res, nil
		}
		if errors.Is(err, ErrNoMarker) {
			// Data integrity failure, not a transient one. No retry
			// within this cycle.
			return nil, res, err
		}
		t.log.WithError(err).Warnf("capture at %s failed", res)
		lastErr = err
	}
	return nil, 0, fmt.Errorf("camera: capture failed at every resolution: %w", lastErr)
}

// grabStill captures one frame in the current mode and returns it as a
// validated JPEG payload.
func (t *Trap) grabStill() ([]byte, error) {
	// The pipeline is not guaranteed warm after a mode switch; the first
	// frame is discarded.
	if warm, err := t.sensor.Frame(); err == nil {
		t.sensor.Release(warm)
	}

	frame, err := t.sensor.Frame()
	if err != nil {
		return nil, fmt.Errorf("camera: still grab: %w", err)
	}
	defer t.sensor.Release(frame)

	var data []byte
	if frame.Fmt != FormatJPEG {
		if data, err = encodeJPEG(frame, t.jpegQuality); err != nil {
			return nil, fmt.Errorf("camera: jpeg encode: %w", err)
		}
	} else {
		// The frame buffer goes back to the driver; keep our own copy.
		data = append([]byte(nil), frame.Pixels...)
	}

	aligned, skipped, err := AlignJPEG(data)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		t.log.Warnf("discarded %d bytes of header noise before jpeg marker", skipped)
	}
	return aligned, nil
}

// switchMode tries the direct register update first and falls back to full
// re-initialization, retried with linearly increasing delay plus one final
// unconditional attempt.
func (t *Trap) switchMode(m Mode) error {
	err := t.sensor.SetMode(m)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrModeUnsupported) {
		t.log.WithError(err).Warnf("direct mode update to %s failed", m)
	}

	reinit := func() error {
		if derr := t.sensor.Deinit(); derr != nil {
			t.log.WithError(derr).Warn("sensor deinit failed")
		}
		return t.sensor.Init(m)
	}
	if err := helper.Retry(reinitAttempts, helper.LinearDelay(t.reinitDelay), reinit); err == nil {
		return nil
	} else {
		t.log.WithError(err).Errorf("re-init to %s failed %d times, final attempt", m, reinitAttempts)
	}
	return reinit()
}

// restoreAndIdle puts the sensor back into low-res polling mode. A failed
// restore triggers one full camera re-initialization as a last resort,
// which is itself allowed to fail and is then surfaced.
func (t *Trap) restoreAndIdle() error {
	t.setState(StateSwitchingLow)
	defragHint()
	err := t.switchMode(t.lowMode)
	if err != nil {
		t.log.WithError(err).Error("low-res restore failed, re-initializing camera")
		if derr := t.sensor.Deinit(); derr != nil {
			t.log.WithError(derr).Warn("sensor deinit failed")
		}
		err = t.sensor.Init(t.lowMode)
		if err != nil {
			err = fmt.Errorf("camera: low-res restore: %w", err)
		}
	}
	t.setState(StateIdle)
	return err
}

func (t *Trap) powerOff() {
	if err := t.sensor.Power(false); err != nil {
		t.log.WithError(err).Warn("sensor power-off failed")
	}
}

// defragHint allocates and immediately drops a large scratch block so the
// allocator gets a chance to consolidate free space on memory-constrained
// targets. Best effort, never fatal.
func defragHint() {
	scratch := make([]byte, scratchBlockSize)
	scratch[0] = 1
	runtime.KeepAlive(scratch)
}
