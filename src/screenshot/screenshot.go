package screenshot

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kbinani/screenshot"

	"snappy-ocr/src/failure"
)

// Region is a rectangle relative to the top-left corner of a display.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

func (r Region) String() string {
	if r.Empty() {
		return ""
	}
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion reads "x,y,w,h". An empty string is the empty Region.
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Region{}, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Region{}, fmt.Errorf("region %q: want x,y,width,height", s)
	}
	var n [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Region{}, fmt.Errorf("region %q: %w", s, err)
		}
		n[i] = v
	}
	r := Region{X: n[0], Y: n[1], Width: n[2], Height: n[3]}
	if r.X < 0 || r.Y < 0 || r.Empty() {
		return Region{}, fmt.Errorf("region %q: offsets must be >= 0 and size > 0", s)
	}
	return r, nil
}

// Source enumerates displays and grabs pixels. System() is backed by the OS.
type Source interface {
	NumDisplays() int
	DisplayBounds(index int) image.Rectangle
	CaptureRect(bounds image.Rectangle) (*image.RGBA, error)
}

// Frame is one captured raster in RGBA channel order.
type Frame struct {
	Display int
	Bounds  image.Rectangle
	Image   *image.RGBA
}

func (f Frame) Width() int  { return f.Bounds.Dx() }
func (f Frame) Height() int { return f.Bounds.Dy() }

type systemSource struct{}

// System returns the Source for the real desktop.
func System() Source { return systemSource{} }

func (systemSource) NumDisplays() int { return screenshot.NumActiveDisplays() }

func (systemSource) DisplayBounds(index int) image.Rectangle {
	return screenshot.GetDisplayBounds(index)
}

func (systemSource) CaptureRect(bounds image.Rectangle) (*image.RGBA, error) {
	return screenshot.CaptureRect(bounds)
}

// Displays lists the bounds of all active displays; index 0 is the primary.
func Displays(src Source) []image.Rectangle {
	n := src.NumDisplays()
	out := make([]image.Rectangle, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, src.DisplayBounds(i))
	}
	return out
}

// CaptureDisplay captures the full contents of display index.
func CaptureDisplay(src Source, index int) (Frame, error) {
	return capture(src, index, Region{})
}

// CaptureRegion captures region of display index. An empty region means the
// whole display.
func CaptureRegion(src Source, index int, region Region) (Frame, error) {
	return capture(src, index, region)
}

func capture(src Source, index int, region Region) (Frame, error) {
	displays := Displays(src)
	if len(displays) == 0 {
		return Frame{}, failure.New(failure.CaptureUnavailable, "list displays", failure.ErrNoDisplay)
	}
	if index < 0 || index >= len(displays) {
		return Frame{}, failure.New(failure.CaptureUnavailable, "select display",
			fmt.Errorf("display %d not found (%d active)", index, len(displays)))
	}

	bounds := displays[index]
	if !region.Empty() {
		r := region.Rect().Add(bounds.Min)
		if !r.In(bounds) {
			return Frame{}, failure.New(failure.CaptureFailed, "select region",
				fmt.Errorf("region %v outside display %d bounds %v", r, index, bounds))
		}
		bounds = r
	}

	img, err := src.CaptureRect(bounds)
	if err != nil {
		return Frame{}, failure.New(failure.CaptureFailed, fmt.Sprintf("capture display %d", index), err)
	}
	if img == nil {
		return Frame{}, failure.New(failure.CaptureFailed, fmt.Sprintf("capture display %d", index),
			fmt.Errorf("empty frame"))
	}
	return Frame{Display: index, Bounds: bounds, Image: img}, nil
}

// Save encodes img as PNG at path, replacing whatever was there. The file is
// written next to path first and renamed into place, so readers never see a
// half-written image.
func Save(img image.Image, path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return failure.New(failure.EncodeFailed, "create "+path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := png.Encode(tmp, img); err != nil {
		_ = tmp.Close()
		cleanup()
		return failure.New(failure.EncodeFailed, "encode "+path, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		cleanup()
		return failure.New(failure.EncodeFailed, "chmod "+path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return failure.New(failure.EncodeFailed, "write "+path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return failure.New(failure.EncodeFailed, "replace "+path, err)
	}
	return nil
}

// Load decodes the PNG at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}
