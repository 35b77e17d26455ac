package detector

import (
	"time"

	"github.com/sirupsen/logrus"
)

const (
	eventQueueDepth    = 10
	defaultSendTimeout = 10 * time.Millisecond
)

// Config stores the motion detection parameters and forms the basis for
// Detect. Zero values select the defaults.
type Config struct {
	Threshold        float64 // per-pixel difference that counts as changed
	MinChangedPixels int     // noise floor below which a frame is ignored
	MinComponentSize int     // smallest pixel cluster that becomes a box
	MaxComponents    int     // labeling stops after this many clusters
	MinArea          int
	MaxArea          int
	MergeIoU         float64 // overlap ratio above which boxes merge
	Alpha            float64
	FrameInitCount   int
}

func (c *Config) setDefaults() {
	if c.Threshold == 0 {
		c.Threshold = 25
	}
	if c.MinChangedPixels == 0 {
		c.MinChangedPixels = 20
	}
	if c.MinComponentSize == 0 {
		c.MinComponentSize = 20
	}
	if c.MaxComponents == 0 {
		c.MaxComponents = 30
	}
	if c.MinArea == 0 {
		c.MinArea = 200
	}
	if c.MaxArea == 0 {
		c.MaxArea = 10000
	}
	if c.MergeIoU == 0 {
		c.MergeIoU = 0.3
	}
}

// Detector consumes grayscale frames, maintains the background model and
// emits an Event for every confirmed detection.
type Detector struct {
	cfg         Config
	bg          *Background
	events      chan Event
	sendTimeout time.Duration

	changed []bool
	labels  []int32

	log *logrus.Entry
}

// New creates a Detector with its own background model and event channel.
func New(cfg Config) *Detector {
	cfg.setDefaults()
	return &Detector{
		cfg:         cfg,
		bg:          NewBackground(cfg.Alpha, cfg.FrameInitCount),
		events:      make(chan Event, eventQueueDepth),
		sendTimeout: defaultSendTimeout,
		log:         logrus.WithField("component", "detector"),
	}
}

// Events returns the channel on which detections are delivered. The channel
// is bounded; events are dropped when the consumer falls behind.
func (d *Detector) Events() <-chan Event {
	return d.events
}

// Background exposes the model for reset on invariant violations.
func (d *Detector) Background() *Background {
	return d.bg
}

// Detect folds the frame into the background model and reports whether
// motion survived clustering and filtering. The returned timestamp is set
// only on a positive detection.
func (d *Detector) Detect(pixels []byte, width, height int) (bool, time.Time) {
	if len(pixels) != width*height {
		d.log.Warnf("frame length %d does not match %dx%d, resetting model", len(pixels), width, height)
		d.bg.Reset()
		return false, time.Time{}
	}

	wasReady := d.bg.Ready()
	d.bg.Update(pixels, width, height)
	if !wasReady || !d.bg.Ready() {
		return false, time.Time{}
	}

	if cap(d.changed) < len(pixels) {
		d.changed = make([]bool, len(pixels))
		d.labels = make([]int32, len(pixels))
	}
	changed := d.changed[:len(pixels)]

	count := d.bg.Diff(pixels, d.cfg.Threshold, changed)
	if count < d.cfg.MinChangedPixels {
		return false, time.Time{}
	}

	boxes := d.clusterChanged(changed, width, height)
	boxes = d.filterBoxes(boxes, width, height)
	if len(boxes) == 0 {
		return false, time.Time{}
	}

	ts := time.Now()
	ev := NewEvent(ts, boxes)
	d.send(ev)
	return true, ts
}

// clusterChanged runs 8-connected component labeling over the changed-pixel
// mask using a breadth-first flood fill seeded from changed pixels only.
// Components below MinComponentSize are noise and never become boxes;
// labeling stops once MaxComponents clusters have been found.
func (d *Detector) clusterChanged(changed []bool, width, height int) []Box {
	labels := d.labels[:len(changed)]
	for i := range labels {
		labels[i] = 0
	}

	var boxes []Box
	var queue []int
	next := int32(0)

	for seed := range changed {
		if !changed[seed] || labels[seed] != 0 {
			continue
		}
		if len(boxes) >= d.cfg.MaxComponents {
			break
		}

		next++
		labels[seed] = next
		queue = append(queue[:0], seed)
		box := Box{XMin: seed % width, YMin: seed / width, XMax: seed % width, YMax: seed / width}
		size := 0

		for len(queue) > 0 {
			idx := queue[0]
			queue = queue[1:]
			size++

			x := idx % width
			y := idx / width
			if x < box.XMin {
				box.XMin = x
			}
			if x > box.XMax {
				box.XMax = x
			}
			if y < box.YMin {
				box.YMin = y
			}
			if y > box.YMax {
				box.YMax = y
			}

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= width || ny >= height {
						continue
					}
					n := ny*width + nx
					if changed[n] && labels[n] == 0 {
						labels[n] = next
						queue = append(queue, n)
					}
				}
			}
		}

		if size >= d.cfg.MinComponentSize {
			boxes = append(boxes, box)
		}
	}

	return boxes
}

// filterBoxes applies the post-detection box filters: oversized boxes first,
// then IoU merging, then undersized and edge-touching boxes.
func (d *Detector) filterBoxes(boxes []Box, width, height int) []Box {
	boxes = FilterLarge(boxes, d.cfg.MaxArea)
	boxes = MergeOverlapping(boxes, d.cfg.MergeIoU)
	boxes = FilterSmall(boxes, d.cfg.MinArea)
	boxes = FilterEdges(boxes, width, height)
	return boxes
}

// send hands the event to the persistence consumer. The send is bounded; a
// full channel drops the event rather than blocking the detection path.
func (d *Detector) send(ev Event) {
	timer := time.NewTimer(d.sendTimeout)
	defer timer.Stop()
	select {
	case d.events <- ev:
	case <-timer.C:
		d.log.Errorf("event queue full, dropping detection %s", ev.ID)
	}
}
