package camera

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
)

// ErrNoMarker means no JPEG start-of-image marker was found anywhere in the
// payload; the capture is unusable.
var ErrNoMarker = errors.New("camera: jpeg start marker not found")

var soiMarker = []byte{0xff, 0xd8}

// AlignJPEG validates the payload's start-of-image marker. Some sensor
// pipelines emit garbage bytes ahead of the marker after a mode switch;
// those are discardable header noise, so the payload is realigned to the
// first marker found. Returns ErrNoMarker when there is none, along with
// how many prefix bytes were dropped.
func AlignJPEG(data []byte) ([]byte, int, error) {
	if bytes.HasPrefix(data, soiMarker) {
		return data, 0, nil
	}
	i := bytes.Index(data, soiMarker)
	if i < 0 {
		return nil, 0, ErrNoMarker
	}
	return data[i:], i, nil
}

// encodeJPEG compresses a grayscale frame. Used when the sensor cannot
// deliver compressed stills itself.
func encodeJPEG(f *Frame, quality int) ([]byte, error) {
	img := &image.Gray{
		Pix:    f.Pixels,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
