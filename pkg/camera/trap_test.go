package camera

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeSensor struct {
	mu sync.Mutex

	mode    Mode
	powered bool

	direct        bool // supports direct register mode updates
	failInitTimes int
	failFrameAt   map[Resolution]bool
	noMarker      bool
	prefix        []byte
	gate          chan struct{} // when set, Frame blocks on it

	grabs    int
	released int
	inits    int
	deinits  int
}

func (s *fakeSensor) Power(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.powered = on
	return nil
}

func (s *fakeSensor) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.direct {
		return ErrModeUnsupported
	}
	s.mode = m
	return nil
}

func (s *fakeSensor) Init(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	if s.failInitTimes > 0 {
		s.failInitTimes--
		return errors.New("sensor busy")
	}
	s.mode = m
	return nil
}

func (s *fakeSensor) Deinit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deinits++
	return nil
}

func (s *fakeSensor) Release(*Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released++
}

func (s *fakeSensor) Frame() (*Frame, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.grabs++
	if s.failFrameAt[s.mode.Res] {
		return nil, errors.New("sensor timeout")
	}
	if s.mode.Fmt == FormatJPEG {
		payload := append([]byte(nil), s.prefix...)
		if !s.noMarker {
			payload = append(payload, 0xff, 0xd8, 0xff, 0xe0, 1, 2, 3)
		} else {
			payload = append(payload, 1, 2, 3)
		}
		return &Frame{Pixels: payload, Fmt: FormatJPEG}, nil
	}
	w, h := s.mode.Res.Dims()
	return &Frame{Pixels: make([]byte, w*h), Width: w, Height: h, Fmt: FormatGrayscale}, nil
}

type memStore struct {
	mu       sync.Mutex
	files    map[string][]byte
	writeErr error
	removed  []string
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (m *memStore) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, path)
	delete(m.files, path)
	return nil
}

type fakeDet struct{ detected bool }

func (d fakeDet) Detect(pixels []byte, width, height int) (bool, time.Time) {
	return d.detected, time.Now()
}

type recordingNotifier struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNotifier) NotifyNewFile(path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
	return nil
}

var (
	testLow  = Mode{Res: ResQVGA, Fmt: FormatGrayscale}
	testHigh = Mode{Res: ResXGA, Fmt: FormatJPEG}
)

func newTestTrap(s *fakeSensor, store *memStore, n Notifier, det MotionDetector) *Trap {
	trap := New(s, det, store, n, testLow, testHigh, "/captures")
	trap.reinitDelay = time.Millisecond
	return trap
}

func TestCapturePersistsAndNotifies(t *testing.T) {
	s := &fakeSensor{direct: true, mode: testLow}
	store := newMemStore()
	notifier := &recordingNotifier{}
	trap := newTestTrap(s, store, notifier, fakeDet{})

	ts := time.Unix(1700000000, 0)
	trap.mu.Lock() // Capture takes over the poll's lock
	if err := trap.Capture(ts); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	want := filepath.Join("/captures", "1700000000.jpg")
	data, ok := store.files[want]
	if !ok {
		t.Fatalf("image not persisted at %s, have %v", want, store.files)
	}
	if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
		t.Error("persisted payload does not start with the jpeg marker")
	}
	if len(notifier.paths) != 1 || notifier.paths[0] != want {
		t.Errorf("notifier got %v, want [%s]", notifier.paths, want)
	}
	if s.mode != testLow {
		t.Errorf("low-res mode not restored, sensor in %s", s.mode)
	}
	if trap.State() != StateIdle {
		t.Errorf("state = %s, want idle", trap.State())
	}
}

func TestCaptureDiscardsFirstFrameAfterModeSwitch(t *testing.T) {
	s := &fakeSensor{direct: true, mode: testLow}
	trap := newTestTrap(s, newMemStore(), nil, fakeDet{})

	trap.mu.Lock()
	if err := trap.Capture(time.Now()); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if s.grabs != 2 {
		t.Errorf("grabs = %d, want 2 (warm-up frame plus still)", s.grabs)
	}
	if s.released != 2 {
		t.Errorf("released = %d, want every borrowed frame returned", s.released)
	}
}

func TestCaptureFallsBackDownTheLadder(t *testing.T) {
	s := &fakeSensor{
		direct:      true,
		mode:        testLow,
		failFrameAt: map[Resolution]bool{ResXGA: true, ResSVGA: true},
	}
	store := newMemStore()
	trap := newTestTrap(s, store, nil, fakeDet{})

	trap.mu.Lock()
	if err := trap.Capture(time.Unix(1, 0)); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if len(store.files) != 1 {
		t.Fatalf("expected one persisted file, got %v", store.files)
	}
	if s.mode != testLow {
		t.Errorf("low-res mode not restored after fallback")
	}
}

func TestCaptureFailsWhenEveryResolutionFails(t *testing.T) {
	fails := map[Resolution]bool{}
	for _, r := range FallbackFrom(ResXGA) {
		fails[r] = true
	}
	s := &fakeSensor{direct: true, mode: testLow, failFrameAt: fails}
	store := newMemStore()
	trap := newTestTrap(s, store, nil, fakeDet{})

	trap.mu.Lock()
	if err := trap.Capture(time.Now()); err == nil {
		t.Fatal("expected error when the whole ladder fails")
	}
	if len(store.files) != 0 {
		t.Errorf("no file should be persisted, got %v", store.files)
	}
	if s.mode != testLow {
		t.Errorf("low-res mode not restored after hard failure")
	}
}

func TestCaptureHardFailsWithoutJPEGMarker(t *testing.T) {
	s := &fakeSensor{direct: true, mode: testLow, noMarker: true}
	trap := newTestTrap(s, newMemStore(), nil, fakeDet{})

	trap.mu.Lock()
	err := trap.Capture(time.Now())
	if !errors.Is(err, ErrNoMarker) {
		t.Fatalf("expected ErrNoMarker, got %v", err)
	}
	if s.mode != testLow {
		t.Error("low-res mode not restored after integrity failure")
	}
}

func TestCaptureRecoversMarkerBehindHeaderNoise(t *testing.T) {
	s := &fakeSensor{direct: true, mode: testLow, prefix: []byte{0xde, 0xad, 0xbe}}
	store := newMemStore()
	trap := newTestTrap(s, store, nil, fakeDet{})

	trap.mu.Lock()
	if err := trap.Capture(time.Unix(2, 0)); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	for _, data := range store.files {
		if !bytes.HasPrefix(data, []byte{0xff, 0xd8}) {
			t.Error("prefix noise not stripped from persisted payload")
		}
	}
}

func TestShortWriteAbandonsCapture(t *testing.T) {
	s := &fakeSensor{direct: true, mode: testLow}
	store := newMemStore()
	store.writeErr = io.ErrShortWrite
	trap := newTestTrap(s, store, nil, fakeDet{})

	trap.mu.Lock()
	if err := trap.Capture(time.Now()); !errors.Is(err, io.ErrShortWrite) {
		t.Fatalf("expected short write error, got %v", err)
	}
	if len(store.removed) != 1 {
		t.Errorf("partial output not removed: %v", store.removed)
	}
}

func TestPollMotionKeepsLockAcrossHandoff(t *testing.T) {
	s := &fakeSensor{direct: true, mode: testLow}
	trap := newTestTrap(s, newMemStore(), nil, fakeDet{detected: true})

	ok, ts := trap.PollMotion()
	if !ok {
		t.Fatal("expected detection")
	}

	// The lock is still held; another poll tick must skip, not block.
	if again, _ := trap.PollMotion(); again {
		t.Error("second poll succeeded while capture lock is held")
	}

	if err := trap.Capture(ts); err != nil {
		t.Fatalf("Capture: %v", err)
	}

	// Capture released the lock; polling works again.
	trap.det = fakeDet{}
	if _, zero := trap.PollMotion(); !zero.IsZero() {
		t.Error("poll after capture should report no motion")
	}
}

func TestCaptureNowBlocksUntilSensorFree(t *testing.T) {
	gate := make(chan struct{})
	s := &fakeSensor{direct: true, mode: testLow, gate: gate}
	trap := newTestTrap(s, newMemStore(), nil, fakeDet{})

	done1 := make(chan error, 1)
	go func() { done1 <- trap.CaptureNow() }()
	time.Sleep(20 * time.Millisecond) // first capture is inside its grab

	done2 := make(chan error, 1)
	go func() { done2 <- trap.CaptureNow() }()
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	if ok, _ := trap.PollMotion(); ok {
		t.Error("poll detected motion while a capture holds the sensor")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("poll blocked for %v, must try-and-skip", elapsed)
	}

	select {
	case <-done2:
		t.Fatal("second capture finished before the first released the lock")
	default:
	}

	gate <- struct{}{} // first capture: warm-up frame
	gate <- struct{}{} // first capture: still
	if err := <-done1; err != nil {
		t.Fatalf("first capture: %v", err)
	}

	gate <- struct{}{}
	gate <- struct{}{}
	if err := <-done2; err != nil {
		t.Fatalf("second capture: %v", err)
	}
}

func TestSwitchModeFallsBackToReinit(t *testing.T) {
	s := &fakeSensor{direct: false, mode: testLow, failInitTimes: 2}
	trap := newTestTrap(s, newMemStore(), nil, fakeDet{})

	if err := trap.switchMode(testHigh); err != nil {
		t.Fatalf("switchMode: %v", err)
	}
	if s.mode != testHigh {
		t.Errorf("sensor mode = %s, want %s", s.mode, testHigh)
	}
	if s.inits != 3 {
		t.Errorf("inits = %d, want 2 failures then success", s.inits)
	}
}

func TestRestoreLastResortReinit(t *testing.T) {
	// Direct updates unsupported and the first four init attempts fail:
	// three bounded retries plus the final unconditional attempt. The
	// last-resort re-initialization in the restore path then succeeds.
	s := &fakeSensor{direct: false, mode: testHigh, failInitTimes: 4}
	trap := newTestTrap(s, newMemStore(), nil, fakeDet{})

	if err := trap.restoreAndIdle(); err != nil {
		t.Fatalf("restoreAndIdle: %v", err)
	}
	if s.mode != testLow {
		t.Errorf("sensor mode = %s, want %s", s.mode, testLow)
	}
	if s.inits != 5 {
		t.Errorf("inits = %d, want 5", s.inits)
	}
}

func TestRestoreFailureSurfaced(t *testing.T) {
	s := &fakeSensor{direct: false, mode: testHigh, failInitTimes: 10}
	trap := newTestTrap(s, newMemStore(), nil, fakeDet{})

	if err := trap.restoreAndIdle(); err == nil {
		t.Fatal("expected restore failure to be surfaced")
	}
	if trap.State() != StateIdle {
		t.Errorf("state = %s, want idle even after failed restore", trap.State())
	}
}
