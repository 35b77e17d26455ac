package detector

import (
	"math"

	"github.com/sirupsen/logrus"
)

// DefaultFrameInitCount is the number of frames used to build the reference
// image before detection is trusted. Gives the sensor's autoexposure some
// time to settle.
const DefaultFrameInitCount = 20

// DefaultAlpha controls how quickly the reference adapts after warm-up.
// Lower numbers respond to quicker movements, higher numbers reduce noise
// sensitivity.
const DefaultAlpha = 0.06

// Background holds a slowly adapting reference image. During warm-up the
// reference is the cumulative mean of all observed frames; afterwards each
// pixel follows a first-order IIR filter so the model tracks lighting drift
// while staying stable against transient motion.
type Background struct {
	ref        []float64
	width      int
	height     int
	frameCount int
	ready      bool
	alpha      float64
	initCount  int
	log        *logrus.Entry
}

// NewBackground creates an empty background model. Zero values for alpha and
// initCount select the defaults.
func NewBackground(alpha float64, initCount int) *Background {
	if alpha == 0 {
		alpha = DefaultAlpha
	}
	if initCount == 0 {
		initCount = DefaultFrameInitCount
	}
	return &Background{
		alpha:     alpha,
		initCount: initCount,
		log:       logrus.WithField("component", "detector"),
	}
}

// Ready reports whether the warm-up period has completed.
func (b *Background) Ready() bool {
	return b.ready
}

// Size returns the dimensions of the current reference image.
func (b *Background) Size() (width, height int) {
	return b.width, b.height
}

// Update folds one grayscale frame into the reference. A dimension change
// discards the reference and restarts warm-up.
func (b *Background) Update(pixels []byte, width, height int) {
	if b.ref == nil || b.width != width || b.height != height {
		b.init(width, height)
	}

	if b.frameCount < b.initCount {
		n := float64(b.frameCount + 1)
		for i, p := range pixels {
			b.ref[i] += (float64(p) - b.ref[i]) / n
		}
		b.frameCount++
		if b.frameCount >= b.initCount {
			b.ready = true
			b.log.Infof("background model initialized after %d frames", b.frameCount)
		}
		return
	}

	for i, p := range pixels {
		b.ref[i] = (1-b.alpha)*b.ref[i] + b.alpha*float64(p)
	}
}

// Diff marks every pixel whose absolute difference from the reference
// exceeds threshold and returns how many changed.
func (b *Background) Diff(pixels []byte, threshold float64, changed []bool) int {
	count := 0
	for i, p := range pixels {
		if math.Abs(b.ref[i]-float64(p)) > threshold {
			changed[i] = true
			count++
		} else {
			changed[i] = false
		}
	}
	return count
}

func (b *Background) init(width, height int) {
	b.ref = make([]float64, width*height)
	b.width = width
	b.height = height
	b.frameCount = 0
	b.ready = false
}

// Reset discards the reference image and restarts warm-up.
func (b *Background) Reset() {
	b.ref = nil
	b.width = 0
	b.height = 0
	b.frameCount = 0
	b.ready = false
}
