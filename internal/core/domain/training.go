package domain

import "time"

// TrainingProgress tracks watch state of the mandatory safety video. It is
// created when a training-requiring category is selected, reset with the
// form, and never persisted.
type TrainingProgress struct {
	ElapsedSeconds  int  `json:"elapsed_seconds"`
	RequiredSeconds int  `json:"required_seconds"`
	Watched         bool `json:"watched"`
	Bypassed        bool `json:"bypassed"`
	Acknowledged    bool `json:"acknowledged"`
}

// Percent reports watch completion from 0 to 100.
func (p TrainingProgress) Percent() int {
	if p.Watched || p.RequiredSeconds <= 0 {
		return 100
	}
	return p.ElapsedSeconds * 100 / p.RequiredSeconds
}

// TrainingCompletion is the durable record keyed by (visitor, category). A
// non-expired completion short-circuits the training gate entirely.
type TrainingCompletion struct {
	VisitorID   string    `json:"visitor_id"`
	CategoryID  string    `json:"category_id"`
	CompletedAt time.Time `json:"completed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the completion still covers the given instant.
func (c TrainingCompletion) ValidAt(now time.Time) bool {
	return c.ExpiresAt.After(now)
}
