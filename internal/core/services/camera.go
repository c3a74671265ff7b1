package services

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"sync"
	"time"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

const (
	captureWidth  = 1280
	captureHeight = 720
)

// MediaCapture owns the camera device handle while live. Start acquires the
// stream, Preview serves horizontally-mirrored frames for a natural selfie
// view, and Capture yields the unmirrored still that becomes the badge
// photo, releasing the device as a side effect.
type MediaCapture struct {
	device ports.CameraDevice

	mu   sync.Mutex
	live bool
}

func NewMediaCapture(device ports.CameraDevice) *MediaCapture {
	return &MediaCapture{device: device}
}

// Start requests the camera stream at the target resolution. Failure is a
// retryable error state, never a fault.
func (m *MediaCapture) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.live {
		return nil
	}
	if err := m.device.Open(ctx, captureWidth, captureHeight); err != nil {
		if domain.IsKind(err, domain.PermissionDenied) {
			return err
		}
		return domain.WrapErr(domain.DeviceUnavailable, "camera.start", err)
	}
	m.live = true
	return nil
}

// Live reports whether the stream is currently held.
func (m *MediaCapture) Live() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live
}

// Preview returns the current frame mirrored horizontally for on-screen
// display. The mirror exists only in the preview; captures are unmirrored.
func (m *MediaCapture) Preview(ctx context.Context) (*domain.CapturedPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live {
		return nil, domain.Errf(domain.DeviceUnavailable, "camera.preview", "stream not started")
	}
	data, contentType, err := m.device.Frame(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.DeviceUnavailable, "camera.preview", err)
	}
	mirrored, err := mirrorImage(data, contentType)
	if err != nil {
		// Undecodable frames are served as-is rather than failing preview.
		mirrored = data
	}
	return &domain.CapturedPhoto{Data: mirrored, ContentType: contentType, CapturedAt: time.Now()}, nil
}

// Capture draws the current frame unmirrored and deterministically stops the
// stream so the camera device is released. Ownership of the returned still
// moves to the caller.
func (m *MediaCapture) Capture(ctx context.Context) (*domain.CapturedPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.live {
		return nil, domain.Errf(domain.DeviceUnavailable, "camera.capture", "stream not started")
	}
	data, contentType, err := m.device.Frame(ctx)
	if err != nil {
		return nil, domain.WrapErr(domain.DeviceUnavailable, "camera.capture", err)
	}
	m.stopLocked()
	return &domain.CapturedPhoto{Data: data, ContentType: contentType, CapturedAt: time.Now()}, nil
}

// Stop releases all stream tracks. Idempotent: safe to call with no active
// stream, and invoked on every exit path from photo mode.
func (m *MediaCapture) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopLocked()
}

func (m *MediaCapture) stopLocked() {
	if !m.live {
		return
	}
	m.live = false
	_ = m.device.Close()
}

// Retake discards the previous still and restarts the stream.
func (m *MediaCapture) Retake(ctx context.Context) error {
	m.Stop()
	return m.Start(ctx)
}

// mirrorImage flips an encoded image horizontally.
func mirrorImage(data []byte, contentType string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	flipped := image.NewRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			flipped.Set(bounds.Max.X-1-(x-bounds.Min.X), y, img.At(x, y))
		}
	}
	var buf bytes.Buffer
	if contentType == "image/png" {
		err = png.Encode(&buf, flipped)
	} else {
		err = jpeg.Encode(&buf, flipped, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
