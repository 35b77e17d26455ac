package main

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/SPAIA/xiao-sense/pkg/camera"
)

// simSensor stands in for the imaging hardware when running off-target.
// It renders a wandering bright patch over a noisy background so the
// detector has something to find.
type simSensor struct {
	mu    sync.Mutex
	on    bool
	mode  camera.Mode
	rng   *rand.Rand
	blobX int
	blobY int
}

func newSimSensor() *simSensor {
	return &simSensor{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		blobX: 40,
		blobY: 40,
	}
}

func (s *simSensor) Power(on bool) error {
	s.mu.Lock()
	s.on = on
	s.mu.Unlock()
	return nil
}

func (s *simSensor) Init(m camera.Mode) error {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	return nil
}

func (s *simSensor) Deinit() error { return nil }

func (s *simSensor) SetMode(m camera.Mode) error {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	return nil
}

func (s *simSensor) Frame() (*camera.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.on {
		return nil, fmt.Errorf("sensor is powered off")
	}

	w, h := s.mode.Res.Dims()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(120 + s.rng.Intn(8))
	}
	s.paintBlob(img, w, h)

	if s.mode.Fmt == camera.FormatJPEG {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, err
		}
		return &camera.Frame{Pixels: buf.Bytes(), Width: w, Height: h, Fmt: camera.FormatJPEG}, nil
	}
	return &camera.Frame{Pixels: img.Pix, Width: w, Height: h, Fmt: camera.FormatGrayscale}, nil
}

func (s *simSensor) paintBlob(img *image.Gray, w, h int) {
	// Random walk, clamped away from the frame border so boxes survive
	// the edge filter.
	s.blobX += s.rng.Intn(7) - 3
	s.blobY += s.rng.Intn(7) - 3
	s.blobX = clamp(s.blobX, 30, w-60)
	s.blobY = clamp(s.blobY, 30, h-60)
	for y := s.blobY; y < s.blobY+24 && y < h; y++ {
		for x := s.blobX; x < s.blobX+24 && x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
}

func (s *simSensor) Release(*camera.Frame) {}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// httpTransport pushes files to the collection endpoint as multipart form
// posts, images to /image and everything else to /upload.
type httpTransport struct {
	base   string
	client *http.Client
}

func newHTTPTransport(base string) *httpTransport {
	return &httpTransport{
		base:   base,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *httpTransport) Send(path, kind string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	endpoint := t.base + "/upload"
	if kind == "image" {
		endpoint = t.base + "/image"
	}
	resp, err := t.client.Post(endpoint, mw.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("upload %s: endpoint returned %s", filepath.Base(path), resp.Status)
	}
	return nil
}

// manualLink tracks uplink state. Off-target there is no radio to bring up,
// so enable and disable just flip the flag.
type manualLink struct {
	mu sync.Mutex
	up bool
}

func newManualLink() *manualLink { return &manualLink{up: true} }

func (l *manualLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.up
}

func (l *manualLink) Enable() error {
	l.mu.Lock()
	l.up = true
	l.mu.Unlock()
	return nil
}

func (l *manualLink) Disable() error {
	l.mu.Lock()
	l.up = false
	l.mu.Unlock()
	return nil
}

// fixedClimate reports constant readings where no BME280 is attached.
type fixedClimate struct{}

func (fixedClimate) Read() (float64, float64, float64, error) {
	return 21.5, 48.0, 1013.25, nil
}
