// Package device adapts the terminal's hardware surfaces (camera frames,
// reported GPS fixes, the badge print agent) to the core ports.
package device

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

// SpoolCamera implements ports.CameraDevice over a frame spool directory
// the terminal's capture agent writes into. Open claims the device, Frame
// serves the newest spooled frame, Close releases the claim.
type SpoolCamera struct {
	dir string

	mu   sync.Mutex
	open bool
}

var _ ports.CameraDevice = (*SpoolCamera)(nil)

func NewSpoolCamera(dir string) *SpoolCamera {
	return &SpoolCamera{dir: dir}
}

func (c *SpoolCamera) Open(ctx context.Context, width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		return domain.Errf(domain.DeviceUnavailable, "camera.open", "device already claimed")
	}
	info, err := os.Stat(c.dir)
	if err != nil || !info.IsDir() {
		return domain.Errf(domain.DeviceUnavailable, "camera.open", "frame spool %q unavailable", c.dir)
	}
	c.open = true
	return nil
}

func (c *SpoolCamera) Frame(ctx context.Context) ([]byte, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return nil, "", domain.Errf(domain.DeviceUnavailable, "camera.frame", "device not open")
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, "", err
	}
	var frames []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") || strings.HasSuffix(name, ".png") {
			frames = append(frames, name)
		}
	}
	if len(frames) == 0 {
		return nil, "", domain.Errf(domain.DeviceUnavailable, "camera.frame", "no frame in spool")
	}
	sort.Strings(frames)
	latest := frames[len(frames)-1]

	data, err := os.ReadFile(filepath.Join(c.dir, latest))
	if err != nil {
		return nil, "", err
	}
	contentType := "image/jpeg"
	if strings.HasSuffix(latest, ".png") {
		contentType = "image/png"
	}
	return data, contentType, nil
}

func (c *SpoolCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	return nil
}
