package uploader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Store lists and prunes the local capture directory.
type Store interface {
	ListDir() ([]string, error)
	Remove(path string) error
}

// Transport pushes one file to the remote endpoint. kind is "image" for
// JPEG captures and "climate" for the daily CSV logs.
type Transport interface {
	Send(path, kind string) error
}

// Link controls the uplink. The scheduler turns it on for a cycle and puts
// it back the way it found it.
type Link interface {
	Connected() bool
	Enable() error
	Disable() error
}

// Marker records that a capture left the device.
type Marker interface {
	MarkUploaded(path string) error
}

// Scheduler drains the capture directory to a remote endpoint, either on a
// fixed interval or immediately as files land (interval 0).
type Scheduler struct {
	mu     sync.Mutex
	policy Policy

	store     Store
	transport Transport
	link      Link
	marker    Marker

	trigger       chan struct{}
	configChanged chan struct{}
	stop          chan struct{}
	done          chan struct{}

	after func(time.Duration) <-chan time.Time

	log *log.Entry
}

func New(store Store, transport Transport, link Link, marker Marker, policy Policy) *Scheduler {
	policy.setDefaults()
	// A fresh scheduler measures its first interval from startup, not
	// from the epoch, so boot does not look like an overdue upload.
	if policy.Interval > 0 && policy.LastUpload.IsZero() {
		policy.LastUpload = time.Now()
	}
	return &Scheduler{
		policy:        policy,
		store:         store,
		transport:     transport,
		link:          link,
		marker:        marker,
		trigger:       make(chan struct{}, 1),
		configChanged: make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
		after:         time.After,
		log:           log.WithField("component", "uploader"),
	}
}

// Run blocks until Stop is called. In interval mode it wakes when the next
// upload falls due, in real-time mode it waits for triggers only. A wake
// never sleeps longer than maxWait so interval changes take effect promptly.
func (s *Scheduler) Run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		interval := s.policy.Interval
		last := s.policy.LastUpload
		s.mu.Unlock()

		var timerCh <-chan time.Time
		if interval > 0 {
			wait := time.Until(last.Add(interval))
			if wait < 0 {
				wait = 0
			}
			if wait > maxWait {
				wait = maxWait
			}
			timerCh = s.after(wait)
		}

		select {
		case <-s.stop:
			return
		case <-s.trigger:
			s.runCycle()
		case <-s.configChanged:
			// Recompute the wait with the new interval.
		case <-timerCh:
			// The interval may have changed while we slept.
			s.mu.Lock()
			due := s.policy.Interval > 0 &&
				!time.Now().Before(s.policy.LastUpload.Add(s.policy.Interval))
			s.mu.Unlock()
			if due {
				s.runCycle()
			}
		}
	}
}

// Stop terminates Run and waits for it to exit.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) runCycle() {
	if s.uploadCycle() {
		return
	}
	s.mu.Lock()
	d := s.policy.Backoff()
	s.mu.Unlock()
	select {
	case <-s.stop:
		return
	case <-s.after(d):
	}
	signal(s.trigger)
}

// uploadCycle brings the uplink up if needed, pushes everything currently
// on disk and restores the uplink to its prior state. It reports success.
func (s *Scheduler) uploadCycle() bool {
	restore, err := s.ensureLink()
	if err == nil {
		err = s.uploadAll()
		restore()
	}
	if err != nil {
		s.mu.Lock()
		s.policy.FailedAttempts++
		n := s.policy.FailedAttempts
		d := s.policy.Backoff()
		s.mu.Unlock()
		s.log.WithField("attempts", n).WithField("backoff", d).
			Warn("upload failed: ", err)
		return false
	}
	s.mu.Lock()
	s.policy.FailedAttempts = 0
	s.policy.LastUpload = time.Now()
	s.mu.Unlock()
	return true
}

// ensureLink turns the uplink on when it is down. The returned restore
// function disables it again only if this call enabled it.
func (s *Scheduler) ensureLink() (func(), error) {
	if s.link == nil || s.link.Connected() {
		return func() {}, nil
	}
	if err := s.link.Enable(); err != nil {
		return nil, fmt.Errorf("uploader: enable uplink: %w", err)
	}
	return func() {
		if err := s.link.Disable(); err != nil {
			s.log.Warn("disable uplink: ", err)
		}
	}, nil
}

func (s *Scheduler) uploadAll() error {
	files, err := s.store.ListDir()
	if err != nil {
		return err
	}
	for _, path := range files {
		// Only captures and daily logs leave the device. The index
		// database and its sidecars stay local.
		if fileKind(path) == "" {
			continue
		}
		if err := s.uploadFile(path); err != nil {
			return err
		}
	}
	return nil
}

func fileKind(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image"
	case ".csv":
		return "climate"
	}
	return ""
}

func (s *Scheduler) uploadFile(path string) error {
	kind := fileKind(path)
	if kind == "" {
		return nil
	}
	if err := s.transport.Send(path, kind); err != nil {
		return err
	}
	if kind == "image" {
		if s.marker != nil {
			if err := s.marker.MarkUploaded(path); err != nil {
				s.log.Warn("mark uploaded: ", err)
			}
		}
		// Captures are removed once uploaded. Daily logs keep
		// accumulating and are re-sent whole.
		if err := s.store.Remove(path); err != nil {
			s.log.Warn("remove after upload: ", err)
		}
	}
	return nil
}

// NotifyNewFile implements the storage notification hook. In real-time mode
// the file is pushed before this returns; in interval mode the scheduled
// cycle picks it up.
func (s *Scheduler) NotifyNewFile(path string) error {
	s.mu.Lock()
	realtime := s.policy.Interval == 0
	s.mu.Unlock()
	if !realtime {
		return nil
	}
	restore, err := s.ensureLink()
	if err == nil {
		err = s.uploadFile(path)
		restore()
	}
	if err != nil {
		s.mu.Lock()
		s.policy.FailedAttempts++
		s.mu.Unlock()
		s.log.Warn("real-time upload failed: ", err)
		signal(s.trigger)
		return err
	}
	s.mu.Lock()
	s.policy.FailedAttempts = 0
	s.policy.LastUpload = time.Now()
	s.mu.Unlock()
	return nil
}

// UploadNow requests an immediate cycle regardless of the interval.
func (s *Scheduler) UploadNow() {
	signal(s.trigger)
}

// SetInterval changes the upload cadence. The new interval is measured from
// now, not from the previous upload.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	s.policy.Interval = d
	s.policy.LastUpload = time.Now()
	s.mu.Unlock()
	signal(s.configChanged)
}

// Snapshot returns the current policy for status reporting.
func (s *Scheduler) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		IntervalSeconds: int(s.policy.Interval / time.Second),
		LastUpload:      s.policy.LastUpload,
		FailedAttempts:  s.policy.FailedAttempts,
	}
}

// signal sets a level-triggered flag channel. A pending signal is not
// stacked.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
