package camera

import "errors"

// ErrModeUnsupported is returned by sensors that cannot change mode through
// a direct register update; the caller falls back to a full re-init cycle.
var ErrModeUnsupported = errors.New("camera: direct mode update unsupported")

// Format tags the pixel layout of a frame.
type Format int

const (
	FormatGrayscale Format = iota
	FormatJPEG
)

func (f Format) String() string {
	switch f {
	case FormatGrayscale:
		return "grayscale"
	case FormatJPEG:
		return "jpeg"
	}
	return "unknown"
}

// Resolution names the standard sensor frame sizes, largest first.
type Resolution int

const (
	ResXGA Resolution = iota // 1024x768
	ResSVGA
	ResVGA
	ResCIF
	ResQVGA // 320x240
)

var resolutionDims = [...][2]int{
	ResXGA:  {1024, 768},
	ResSVGA: {800, 600},
	ResVGA:  {640, 480},
	ResCIF:  {400, 296},
	ResQVGA: {320, 240},
}

var resolutionNames = [...]string{
	ResXGA:  "XGA",
	ResSVGA: "SVGA",
	ResVGA:  "VGA",
	ResCIF:  "CIF",
	ResQVGA: "QVGA",
}

// Dims returns the pixel dimensions of the resolution.
func (r Resolution) Dims() (width, height int) {
	d := resolutionDims[r]
	return d[0], d[1]
}

func (r Resolution) String() string {
	if r < 0 || int(r) >= len(resolutionNames) {
		return "unknown"
	}
	return resolutionNames[r]
}

// FallbackFrom lists r followed by every smaller standard resolution, the
// order capture attempts walk when the requested size fails.
func FallbackFrom(r Resolution) []Resolution {
	var ladder []Resolution
	for res := r; res <= ResQVGA; res++ {
		ladder = append(ladder, res)
	}
	return ladder
}

// Mode pairs a resolution with a pixel format.
type Mode struct {
	Res Resolution
	Fmt Format
}

func (m Mode) String() string {
	return m.Res.String() + "/" + m.Fmt.String()
}

// Frame is a borrowed view of one captured image. It must be handed back
// through Sensor.Release before the call that produced it returns.
type Frame struct {
	Pixels []byte
	Width  int
	Height int
	Fmt    Format
}

// Sensor is the imaging hardware collaborator. Implementations wrap the
// physical sensor driver; all methods are called with the capture lock held.
type Sensor interface {
	// Power turns the imaging sensor on or off.
	Power(on bool) error
	// Frame grabs one frame in the current mode.
	Frame() (*Frame, error)
	// Release returns a borrowed frame to the driver.
	Release(*Frame)
	// SetMode reconfigures resolution and format through a direct register
	// update, without re-initializing the sensor. Returns
	// ErrModeUnsupported when the sensor cannot do that reliably.
	SetMode(Mode) error
	// Init performs a full initialization into the given mode.
	Init(Mode) error
	// Deinit shuts the sensor down completely.
	Deinit() error
}
