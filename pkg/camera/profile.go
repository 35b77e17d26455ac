package camera

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Profile records the monotonic milestones of one capture cycle. Purely
// diagnostic.
type Profile struct {
	Detected    time.Time
	ModeReady   time.Time
	FrameReady  time.Time
	FileWritten time.Time
}

// Fields renders the cycle durations for logging.
func (p Profile) Fields() logrus.Fields {
	return logrus.Fields{
		"switch_ms": p.ModeReady.Sub(p.Detected).Milliseconds(),
		"grab_ms":   p.FrameReady.Sub(p.ModeReady).Milliseconds(),
		"write_ms":  p.FileWritten.Sub(p.FrameReady).Milliseconds(),
		"total_ms":  p.FileWritten.Sub(p.Detected).Milliseconds(),
	}
}
