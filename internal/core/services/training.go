package services

import (
	"sync"
	"time"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

// RequiredTrainingSeconds is the fixed watch duration of the mandatory
// safety video (3m27s of wall-clock seconds, counted once per second).
const RequiredTrainingSeconds = 207

// NewTickerFunc builds the one-second countdown ticker. Injected so tests
// can drive progress without wall-clock time.
type NewTickerFunc func(d time.Duration) ports.Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) Chan() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()                  { r.t.Stop() }

// NewRealTicker is the production NewTickerFunc.
func NewRealTicker(d time.Duration) ports.Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// TrainingGate tracks watch progress of the mandatory video and produces a
// pass/fail gate. Organic completion and the supervised bypass are mutually
// exclusive; proceeding additionally requires an explicit acknowledgement.
type TrainingGate struct {
	newTicker NewTickerFunc

	mu       sync.Mutex
	progress domain.TrainingProgress
	ticker   ports.Ticker
	done     chan struct{}
}

func NewTrainingGate(newTicker NewTickerFunc) *TrainingGate {
	if newTicker == nil {
		newTicker = NewRealTicker
	}
	return &TrainingGate{
		newTicker: newTicker,
		progress:  domain.TrainingProgress{RequiredSeconds: RequiredTrainingSeconds},
	}
}

// Start begins the monotonic one-second progress counter. A no-op when the
// gate already passed or the counter is running.
func (g *TrainingGate) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.progress.Watched || g.progress.Bypassed || g.ticker != nil {
		return
	}
	g.ticker = g.newTicker(time.Second)
	g.done = make(chan struct{})
	go g.run(g.ticker, g.done)
}

func (g *TrainingGate) run(ticker ports.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			if g.advance() {
				return
			}
		}
	}
}

// advance counts one elapsed second and reports whether the gate finished.
func (g *TrainingGate) advance() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.progress.Watched || g.ticker == nil {
		return true
	}
	g.progress.ElapsedSeconds++
	if g.progress.ElapsedSeconds >= g.progress.RequiredSeconds {
		g.progress.Watched = true
		g.stopLocked()
		return true
	}
	return false
}

// Bypass marks the video as already watched under supervision. Cancels any
// running counter so bypass and organic completion stay mutually exclusive.
func (g *TrainingGate) Bypass() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.progress.Watched {
		return
	}
	g.stopLocked()
	g.progress.Bypassed = true
	g.progress.Watched = true
}

// Acknowledge records the explicit operator confirmation required to
// proceed past the gate, independent of watch state.
func (g *TrainingGate) Acknowledge() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.progress.Acknowledged = true
}

// Passed reports whether the gate allows advancing to photo capture.
func (g *TrainingGate) Passed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress.Watched && g.progress.Acknowledged
}

// Progress returns a snapshot of the current watch state.
func (g *TrainingGate) Progress() domain.TrainingProgress {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress
}

// Reset tears down the counter and zeroes all progress. Must run on every
// unmount path; a leaked interval is a defect.
func (g *TrainingGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
	g.progress = domain.TrainingProgress{RequiredSeconds: RequiredTrainingSeconds}
}

func (g *TrainingGate) stopLocked() {
	if g.ticker != nil {
		g.ticker.Stop()
		g.ticker = nil
	}
	if g.done != nil {
		close(g.done)
		g.done = nil
	}
}

// OrganicCompletion reports whether the visitor actually watched the video
// rather than being bypassed; commits record a durable completion either way
// but the distinction is kept on the progress snapshot.
func (g *TrainingGate) OrganicCompletion() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.progress.Watched && !g.progress.Bypassed
}
