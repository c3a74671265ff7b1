package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/metrics"
)

// transitions is the fixed state-transition table: mode x action -> next
// mode. Any pair absent from the table is an illegal transition and is
// rejected with the mode unchanged.
var transitions = map[domain.Mode]map[domain.Action]domain.Mode{
	domain.ModeReceptionistLogin: {
		domain.ActionUnlock: domain.ModeHome,
	},
	domain.ModeHome: {
		domain.ActionChooseSignIn:   domain.ModeSignIn,
		domain.ActionChooseBooking:  domain.ModeBooking,
		domain.ActionChooseSignOut:  domain.ModeSignOut,
		domain.ActionChooseEmployee: domain.ModeEmployeeLogin,
		domain.ActionAutoSignIn:     domain.ModeEmployeeDashboard,
		domain.ActionEmployeeAuthed: domain.ModeEmployeeDashboard,
	},
	domain.ModeSignIn: {
		domain.ActionStartTraining: domain.ModeTraining,
		domain.ActionSkipTraining:  domain.ModePhoto,
		domain.ActionBack:          domain.ModeHome,
		domain.ActionReset:         domain.ModeHome,
	},
	domain.ModeBooking: {
		domain.ActionStartTraining: domain.ModeTraining,
		domain.ActionSkipTraining:  domain.ModePhoto,
		domain.ActionBack:          domain.ModeHome,
		domain.ActionReset:         domain.ModeHome,
	},
	domain.ModeTraining: {
		domain.ActionPassTraining: domain.ModePhoto,
		domain.ActionBack:         domain.ModeHome,
		domain.ActionReset:        domain.ModeHome,
	},
	domain.ModePhoto: {
		domain.ActionCommit: domain.ModeSuccess,
		domain.ActionBack:   domain.ModeHome,
		domain.ActionReset:  domain.ModeHome,
	},
	domain.ModeSignOut: {
		domain.ActionSignOutDone: domain.ModeSuccess,
		domain.ActionBack:        domain.ModeHome,
		domain.ActionReset:       domain.ModeHome,
	},
	domain.ModeEmployeeLogin: {
		domain.ActionEmployeeAuthed: domain.ModeEmployeeDashboard,
		domain.ActionBack:           domain.ModeHome,
		domain.ActionReset:          domain.ModeHome,
	},
	domain.ModeEmployeeDashboard: {
		domain.ActionEmployeeLeave: domain.ModeSuccess,
		domain.ActionBack:          domain.ModeHome,
		domain.ActionReset:         domain.ModeHome,
	},
	domain.ModeSuccess: {
		domain.ActionFinish: domain.ModeHome,
		domain.ActionReset:  domain.ModeHome,
	},
}

// flow names which branch of the workflow is producing the commit.
type flow string

const (
	flowNone    flow = ""
	flowSignIn  flow = "sign-in"
	flowBooking flow = "booking"
)

// SessionDeps are the collaborator ports the state machine drives. Every
// side effect of a transition goes through one of these.
type SessionDeps struct {
	Directory  ports.DirectoryRepository
	Visitors   ports.VisitorRepository
	Training   ports.TrainingRepository
	SignIns    ports.SignInRepository
	Bookings   ports.BookingRepository
	Remembered ports.RememberedSessionStore
	Notices    ports.HostNoticePublisher
	Photos     ports.PhotoStorage
	Printer    ports.BadgePrinter
	Camera     ports.CameraDevice
	Resolver   *GeoResolver
	NewTicker  NewTickerFunc
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Session is the sole owner of the current kiosk mode. Every other component
// reports back success/failure/progress and never mutates mode directly.
type Session struct {
	deviceID string
	deps     SessionDeps

	mu     sync.Mutex
	mode   domain.Mode
	camera *MediaCapture
	gate   *TrainingGate

	sites      []domain.Site
	categories []domain.Category
	hosts      []domain.Host

	site              *domain.Site
	resolved          *Resolution
	geoErr            string
	detectingLocation bool

	remembered *domain.RememberedEmployee
	employee   *domain.Employee

	flow             flow
	draft            *domain.VisitorDraft
	trainingRequired bool
	bookings         []domain.Booking
	selectedBooking  *domain.Booking
	photo            *domain.CapturedPhoto

	lastBadge string
	lastError string
}

func NewSession(deviceID string, deps SessionDeps) *Session {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Session{
		deviceID: deviceID,
		deps:     deps,
		mode:     domain.ModeReceptionistLogin,
		camera:   NewMediaCapture(deps.Camera),
		gate:     NewTrainingGate(deps.NewTicker),
	}
}

// Mode returns the current session mode.
func (s *Session) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// advanceLocked validates the action against the transition table and moves
// the mode. Leaving photo mode through any path releases the camera here so
// no exit path can forget it.
func (s *Session) advanceLocked(action domain.Action) error {
	next, ok := transitions[s.mode][action]
	if !ok {
		if s.deps.Metrics != nil {
			s.deps.Metrics.RejectedTransitions.WithLabelValues(string(s.mode), string(action)).Inc()
		}
		return domain.Errf(domain.ValidationFailed, "session.transition",
			"action %q not allowed in mode %q", action, s.mode)
	}
	if s.mode == domain.ModePhoto && next != domain.ModePhoto {
		s.camera.Stop()
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.Transitions.WithLabelValues(string(s.mode), string(action), string(next)).Inc()
	}
	s.mode = next
	return nil
}

// resetDraftsLocked clears all transient state: visitor form, training
// progress, booking selection, captured photo, inline error text. The
// remembered-session store is untouched.
func (s *Session) resetDraftsLocked() {
	s.camera.Stop()
	s.gate.Reset()
	s.flow = flowNone
	s.draft = nil
	s.trainingRequired = false
	s.bookings = nil
	s.selectedBooking = nil
	s.photo = nil
	s.lastError = ""
}

// Unlock moves the terminal from receptionist login to the home screen,
// loading the site directory and the remembered-employee record.
func (s *Session) Unlock(ctx context.Context) error {
	sites, err := s.deps.Directory.ListSites(ctx)
	if err != nil {
		return domain.WrapErr(domain.UpstreamFailure, "session.unlock", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.advanceLocked(domain.ActionUnlock); err != nil {
		return err
	}
	s.sites = sites
	if s.deps.Metrics != nil {
		s.deps.Metrics.Unlocks.Inc()
	}

	if s.deps.Remembered != nil {
		remembered, err := s.deps.Remembered.Load(ctx, s.deviceID)
		if err != nil {
			log.Printf("kiosk %s: remembered-session load failed: %v", s.deviceID, err)
		} else {
			s.remembered = remembered
		}
	}
	return nil
}

// RefreshLocation resolves the nearest site. It may take up to the 10s
// geolocation budget, so it runs without holding the session lock; failures
// set the inline geo error and the site list stays manually selectable.
// A successful resolution may trigger the remembered-employee auto sign-in.
func (s *Session) RefreshLocation(ctx context.Context) {
	s.mu.Lock()
	s.detectingLocation = true
	s.geoErr = ""
	sites := make([]domain.Site, len(s.sites))
	copy(sites, s.sites)
	s.mu.Unlock()

	res, err := s.deps.Resolver.Resolve(ctx, sites)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.detectingLocation = false
	if err != nil {
		s.geoErr = err.Error()
		if s.deps.Metrics != nil {
			s.deps.Metrics.GeoResolveFailures.WithLabelValues(string(domain.KindOf(err))).Inc()
		}
		log.Printf("kiosk %s: geolocation failed, manual site selection: %v", s.deviceID, err)
		return
	}
	s.resolved = res
	s.maybeAutoSignInLocked(ctx)
}

// maybeAutoSignInLocked silently moves a remembered employee to the
// dashboard when the resolved nearest site matches. The transition table
// only admits auto-sign-in from home, so a manual flow already in progress
// makes this a no-op rather than yanking the mode out from under the user.
func (s *Session) maybeAutoSignInLocked(ctx context.Context) {
	if s.mode != domain.ModeHome || s.remembered == nil || s.resolved == nil {
		return
	}
	if s.remembered.SiteID != s.resolved.Site.ID {
		return
	}
	emp := domain.Employee{
		ID:        s.remembered.ID,
		Email:     s.remembered.Email,
		FullName:  s.remembered.FullName,
		SiteID:    s.remembered.SiteID,
		Role:      s.remembered.Role,
		AvatarURL: s.remembered.AvatarURL,
	}
	if err := s.advanceLocked(domain.ActionAutoSignIn); err != nil {
		return
	}
	s.employee = &emp
	s.site = &s.resolved.Site

	// The silent path must never crash the session; a failed presence
	// record is logged and the dashboard still opens.
	rec := domain.SignInRecord{
		ID:        uuid.NewString(),
		VisitorID: emp.ID,
		SiteID:    emp.SiteID,
		Type:      "in",
	}
	if _, err := s.deps.SignIns.Create(ctx, rec, nil); err != nil {
		log.Printf("kiosk %s: auto sign-in presence record failed: %v", s.deviceID, err)
	}
}

// effectiveSiteLocked is the manually selected site, falling back to the
// resolved nearest one.
func (s *Session) effectiveSiteLocked() *domain.Site {
	if s.site != nil {
		return s.site
	}
	if s.resolved != nil {
		site := s.resolved.Site
		return &site
	}
	return nil
}

// SelectSite pins the session to a manually chosen site.
func (s *Session) SelectSite(siteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sites {
		if s.sites[i].ID == siteID {
			s.site = &s.sites[i]
			return nil
		}
	}
	return domain.Errf(domain.ValidationFailed, "session.select_site", "unknown site %q", siteID)
}

// Choose branches from home into one of the four user-selectable flows. The
// visitor flows require a site; its categories and hosts are loaded here.
func (s *Session) Choose(ctx context.Context, action domain.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	site := s.effectiveSiteLocked()
	if site == nil && action != domain.ActionChooseEmployee {
		return domain.FieldErr("session.choose", "site")
	}

	if site != nil && action != domain.ActionChooseEmployee {
		categories, err := s.deps.Directory.ListCategories(ctx, site.ID)
		if err != nil {
			return domain.WrapErr(domain.UpstreamFailure, "session.choose", err)
		}
		hosts, err := s.deps.Directory.ListHosts(ctx, site.ID)
		if err != nil {
			return domain.WrapErr(domain.UpstreamFailure, "session.choose", err)
		}
		s.categories = categories
		s.hosts = hosts
	}

	if err := s.advanceLocked(action); err != nil {
		return err
	}
	s.site = site
	switch action {
	case domain.ActionChooseSignIn:
		s.flow = flowSignIn
	case domain.ActionChooseBooking:
		s.flow = flowBooking
	}
	return nil
}

// SubmitSignIn validates the visitor form and routes to training or photo
// depending on the selected category and any non-expired prior completion.
func (s *Session) SubmitSignIn(ctx context.Context, draft domain.VisitorDraft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != domain.ModeSignIn {
		return domain.Errf(domain.ValidationFailed, "session.sign_in", "not in sign-in mode")
	}
	if strings.TrimSpace(draft.FullName) == "" {
		return domain.FieldErr("session.sign_in", "full_name")
	}
	if strings.TrimSpace(draft.Email) == "" {
		return domain.FieldErr("session.sign_in", "email")
	}
	if draft.CategoryID == "" {
		return domain.FieldErr("session.sign_in", "category_id")
	}
	category := s.categoryLocked(draft.CategoryID)
	if category == nil {
		return domain.Errf(domain.ValidationFailed, "session.sign_in", "unknown category %q", draft.CategoryID)
	}

	s.draft = &draft
	return s.routeAfterFormLocked(ctx, *category, draft.Email, draft.FullName, draft.HostID)
}

// routeAfterFormLocked applies the shared training-requirement rule for the
// sign-in and booking branches.
func (s *Session) routeAfterFormLocked(ctx context.Context, category domain.Category, email, name, hostID string) error {
	s.trainingRequired = false
	if category.RequiresTraining {
		completion, err := s.deps.Training.FindCompletionByEmail(ctx, strings.ToLower(email), category.ID)
		if err != nil {
			// Fail safe: an unreadable completion record means training runs.
			log.Printf("kiosk %s: training completion lookup failed: %v", s.deviceID, err)
		}
		if completion == nil || !completion.ValidAt(s.deps.Now()) {
			s.trainingRequired = true
		}
	}

	if s.trainingRequired {
		if err := s.advanceLocked(domain.ActionStartTraining); err != nil {
			return err
		}
		s.gate.Reset()
		s.publishNoticeLocked(ctx, ports.NoticeTrainingStarted, hostID, name, email, "")
		return nil
	}

	if err := s.advanceLocked(domain.ActionSkipTraining); err != nil {
		return err
	}
	s.startCameraLocked(ctx)
	return nil
}

// startCameraLocked opens the photo stream; failure is retryable inline
// state, not a mode change, since the photo itself is optional.
func (s *Session) startCameraLocked(ctx context.Context) {
	if err := s.camera.Start(ctx); err != nil {
		s.lastError = err.Error()
		log.Printf("kiosk %s: camera start failed (retryable): %v", s.deviceID, err)
	}
}

// publishNoticeLocked dispatches a best-effort host notice. Delivery failure
// is logged and swallowed; it never blocks a transition.
func (s *Session) publishNoticeLocked(ctx context.Context, kind, hostID, visitorName, visitorEmail, badge string) {
	site := s.effectiveSiteLocked()
	if site == nil || !site.Settings.NotifyHosts || hostID == "" || s.deps.Notices == nil {
		return
	}
	evt := ports.HostNoticeEvent{
		Kind:         kind,
		SiteID:       site.ID,
		HostID:       hostID,
		HostEmail:    s.hostEmailLocked(ctx, hostID),
		VisitorName:  visitorName,
		VisitorEmail: visitorEmail,
		Badge:        badge,
		OccurredAt:   s.deps.Now(),
	}
	if err := s.deps.Notices.PublishHostNotice(ctx, evt); err != nil {
		log.Printf("kiosk %s: host notice %s failed (ignored): %v", s.deviceID, kind, err)
	}
}

// hostEmailLocked resolves the notify address for a host. Booking hosts can
// sit outside the cached per-site list, so missing ones go to the directory.
func (s *Session) hostEmailLocked(ctx context.Context, hostID string) string {
	for _, h := range s.hosts {
		if h.ID == hostID {
			return h.Email
		}
	}
	if s.deps.Directory != nil {
		host, err := s.deps.Directory.FindHost(ctx, hostID)
		if err != nil {
			log.Printf("kiosk %s: host %s lookup failed (notice sent without email): %v", s.deviceID, hostID, err)
			return ""
		}
		return host.Email
	}
	return ""
}

func (s *Session) categoryLocked(id string) *domain.Category {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return &s.categories[i]
		}
	}
	return nil
}

// StartTrainingVideo begins the watch countdown.
func (s *Session) StartTrainingVideo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModeTraining {
		return domain.Errf(domain.ValidationFailed, "session.training", "not in training mode")
	}
	s.gate.Start()
	return nil
}

// BypassTraining applies the supervised already-watched bypass.
func (s *Session) BypassTraining() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModeTraining {
		return domain.Errf(domain.ValidationFailed, "session.training", "not in training mode")
	}
	s.gate.Bypass()
	return nil
}

// AcknowledgeTraining records the explicit user confirmation.
func (s *Session) AcknowledgeTraining() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModeTraining {
		return domain.Errf(domain.ValidationFailed, "session.training", "not in training mode")
	}
	s.gate.Acknowledge()
	return nil
}

// CompleteTraining advances past the gate. Rejected, with the mode staying
// training, unless watched (or bypassed) and acknowledged.
func (s *Session) CompleteTraining(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModeTraining {
		return domain.Errf(domain.ValidationFailed, "session.training", "not in training mode")
	}
	if !s.gate.Passed() {
		return domain.Errf(domain.ValidationFailed, "session.training", "training gate not passed")
	}
	if err := s.advanceLocked(domain.ActionPassTraining); err != nil {
		return err
	}
	s.startCameraLocked(ctx)
	return nil
}

// TrainingProgress exposes the current gate snapshot for display.
func (s *Session) TrainingProgress() domain.TrainingProgress {
	return s.gate.Progress()
}

// RetryCamera re-attempts stream acquisition after a camera error.
func (s *Session) RetryCamera(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModePhoto {
		return domain.Errf(domain.ValidationFailed, "session.photo", "not in photo mode")
	}
	s.lastError = ""
	if err := s.camera.Start(ctx); err != nil {
		s.lastError = err.Error()
		return err
	}
	return nil
}

// PreviewFrame serves the mirrored live preview.
func (s *Session) PreviewFrame(ctx context.Context) (*domain.CapturedPhoto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModePhoto {
		return nil, domain.Errf(domain.ValidationFailed, "session.photo", "not in photo mode")
	}
	return s.camera.Preview(ctx)
}

// CapturePhoto takes the unmirrored still; ownership of the image moves to
// the session, and the camera device is released as a side effect.
func (s *Session) CapturePhoto(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModePhoto {
		return domain.Errf(domain.ValidationFailed, "session.photo", "not in photo mode")
	}
	photo, err := s.camera.Capture(ctx)
	if err != nil {
		s.lastError = err.Error()
		return err
	}
	s.photo = photo
	return nil
}

// RetakePhoto discards the captured still and restarts the stream.
func (s *Session) RetakePhoto(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModePhoto {
		return domain.Errf(domain.ValidationFailed, "session.photo", "not in photo mode")
	}
	s.photo = nil
	if err := s.camera.Retake(ctx); err != nil {
		s.lastError = err.Error()
		return err
	}
	return nil
}

// Commit is the irreversible final step entered from photo mode, with or
// without a captured image. Writes run in a fixed order because later steps
// reference identifiers produced by earlier ones; a failure aborts the
// remaining steps and leaves the mode unchanged so the operator can retry.
// Steps already committed are not rolled back.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != domain.ModePhoto {
		return domain.Errf(domain.ValidationFailed, "session.commit", "not in photo mode")
	}
	site := s.effectiveSiteLocked()
	if site == nil {
		return domain.FieldErr("session.commit", "site")
	}
	draft := s.commitDraftLocked()
	if draft == nil {
		return domain.Errf(domain.ValidationFailed, "session.commit", "nothing to commit")
	}

	err := s.runCommitLocked(ctx, *site, *draft)
	if err != nil {
		if s.deps.Metrics != nil {
			s.deps.Metrics.CommitFailures.Inc()
		}
		s.lastError = err.Error()
		if domain.KindOf(err) == domain.UpstreamFailure {
			return err
		}
		return domain.WrapErr(domain.UpstreamFailure, "session.commit", err)
	}
	return s.advanceLocked(domain.ActionCommit)
}

// commitDraftLocked resolves the form feeding the commit: the visitor draft
// for the sign-in branch, or fields lifted from the selected booking.
func (s *Session) commitDraftLocked() *domain.VisitorDraft {
	if s.flow == flowBooking && s.selectedBooking != nil {
		b := s.selectedBooking
		return &domain.VisitorDraft{
			FullName:   b.VisitorName,
			Email:      b.VisitorEmail,
			CategoryID: b.CategoryID,
			HostID:     b.HostID,
		}
	}
	return s.draft
}

func (s *Session) runCommitLocked(ctx context.Context, site domain.Site, draft domain.VisitorDraft) error {
	visitor, err := s.deps.Visitors.Upsert(ctx, draft)
	if err != nil {
		return fmt.Errorf("visitor upsert: %w", err)
	}

	photoURL := ""
	if s.photo != nil {
		photoURL, err = s.deps.Photos.StorePhoto(ctx, visitor.ID, *s.photo)
		if err != nil {
			return fmt.Errorf("photo upload: %w", err)
		}
	}

	if s.trainingRequired && s.gate.Progress().Watched {
		validDays := site.Settings.TrainingValidDays
		if validDays <= 0 {
			validDays = 365
		}
		now := s.deps.Now()
		completion := domain.TrainingCompletion{
			VisitorID:   visitor.ID,
			CategoryID:  draft.CategoryID,
			CompletedAt: now,
			ExpiresAt:   now.AddDate(0, 0, validDays),
		}
		if err := s.deps.Training.RecordCompletion(ctx, completion); err != nil {
			return fmt.Errorf("training completion: %w", err)
		}
	}

	// The badge number exists only from this point on; an abandoned flow
	// never consumes one.
	badge := newBadgeNumber()
	rec := domain.SignInRecord{
		ID:         uuid.NewString(),
		VisitorID:  visitor.ID,
		SiteID:     site.ID,
		CategoryID: draft.CategoryID,
		HostID:     draft.HostID,
		Badge:      badge,
		Type:       "in",
		PhotoURL:   photoURL,
	}
	if s.selectedBooking != nil {
		rec.BookingID = s.selectedBooking.ID
	}

	var outboxPayload []byte
	if site.Settings.NotifyHosts && draft.HostID != "" {
		outboxPayload = s.noticePayloadLocked(ctx, site, draft, badge)
	}

	created, err := s.deps.SignIns.Create(ctx, rec, outboxPayload)
	if err != nil {
		return fmt.Errorf("sign-in record: %w", err)
	}

	if s.selectedBooking != nil {
		err := s.deps.Bookings.UpdateStatus(ctx, s.selectedBooking.ID,
			domain.BookingPending, domain.BookingCheckedIn)
		if err != nil {
			return fmt.Errorf("booking status: %w", err)
		}
	}

	// Badge printing happens only after the record is durable, and a closed
	// print surface never fails the flow.
	if site.Settings.PrintBadges && s.deps.Printer != nil {
		if err := s.deps.Printer.PrintBadge(ctx, *created, draft.FullName); err != nil {
			log.Printf("kiosk %s: badge print failed (ignored): %v", s.deviceID, err)
		}
	}

	s.lastBadge = badge
	return nil
}

func (s *Session) noticePayloadLocked(ctx context.Context, site domain.Site, draft domain.VisitorDraft, badge string) []byte {
	evt := ports.HostNoticeEvent{
		Kind:         ports.NoticeVisitorArrived,
		SiteID:       site.ID,
		HostID:       draft.HostID,
		HostEmail:    s.hostEmailLocked(ctx, draft.HostID),
		VisitorName:  draft.FullName,
		VisitorEmail: draft.Email,
		Badge:        badge,
		OccurredAt:   s.deps.Now(),
	}
	payload, err := marshalNotice(evt)
	if err != nil {
		log.Printf("kiosk %s: notice payload marshal failed (ignored): %v", s.deviceID, err)
		return nil
	}
	return payload
}

// LookupBookings queries pending bookings for the email, case-insensitively.
// A single match is auto-selected.
func (s *Session) LookupBookings(ctx context.Context, email string) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModeBooking {
		return nil, domain.Errf(domain.ValidationFailed, "session.booking", "not in booking mode")
	}
	if strings.TrimSpace(email) == "" {
		return nil, domain.FieldErr("session.booking", "email")
	}

	bookings, err := s.deps.Bookings.FindPendingByEmail(ctx, strings.ToLower(email))
	if err != nil {
		return nil, domain.WrapErr(domain.UpstreamFailure, "session.booking", err)
	}
	if len(bookings) == 0 {
		return nil, domain.Errf(domain.NotFound, "session.booking", "no pending booking for %q", email)
	}
	s.bookings = bookings
	s.selectedBooking = nil
	if len(bookings) == 1 {
		s.selectedBooking = &s.bookings[0]
	}
	return bookings, nil
}

// SelectBooking picks exactly one of the matched bookings.
func (s *Session) SelectBooking(bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.bookings {
		if s.bookings[i].ID == bookingID {
			s.selectedBooking = &s.bookings[i]
			return nil
		}
	}
	return domain.Errf(domain.NotFound, "session.booking", "booking %q not in lookup results", bookingID)
}

// CheckInBooking starts the check-in for the selected booking, applying the
// same training-requirement rule scoped to the booking's category.
func (s *Session) CheckInBooking(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModeBooking {
		return domain.Errf(domain.ValidationFailed, "session.booking", "not in booking mode")
	}
	if s.selectedBooking == nil {
		return domain.FieldErr("session.booking", "booking")
	}
	b := s.selectedBooking
	category := s.categoryLocked(b.CategoryID)
	if category == nil {
		// Category outside the loaded site directory; treat as untrained.
		category = &domain.Category{ID: b.CategoryID}
	}
	return s.routeAfterFormLocked(ctx, *category, b.VisitorEmail, b.VisitorName, b.HostID)
}

// SubmitSignOut closes the most recent open sign-in for the visitor email.
func (s *Session) SubmitSignOut(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != domain.ModeSignOut {
		return domain.Errf(domain.ValidationFailed, "session.sign_out", "not in sign-out mode")
	}
	if strings.TrimSpace(email) == "" {
		return domain.FieldErr("session.sign_out", "email")
	}
	site := s.effectiveSiteLocked()
	siteID := ""
	if site != nil {
		siteID = site.ID
	}
	if _, err := s.deps.SignIns.CloseLatest(ctx, strings.ToLower(email), siteID); err != nil {
		if domain.KindOf(err) == domain.NotFound {
			return err
		}
		return domain.WrapErr(domain.UpstreamFailure, "session.sign_out", err)
	}
	return s.advanceLocked(domain.ActionSignOutDone)
}

// EmployeeAuthenticated completes an employee login, from the OAuth callback
// or a remembered-device tap. With remember set, the store record is
// overwritten for this device.
func (s *Session) EmployeeAuthenticated(ctx context.Context, emp domain.Employee, remember bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.advanceLocked(domain.ActionEmployeeAuthed); err != nil {
		return err
	}
	s.employee = &emp

	rec := domain.SignInRecord{
		ID:        uuid.NewString(),
		VisitorID: emp.ID,
		SiteID:    emp.SiteID,
		Type:      "in",
	}
	if _, err := s.deps.SignIns.Create(ctx, rec, nil); err != nil {
		log.Printf("kiosk %s: employee presence record failed: %v", s.deviceID, err)
	}

	if remember && s.deps.Remembered != nil {
		remembered := domain.RememberedEmployee{
			ID:        emp.ID,
			Email:     emp.Email,
			FullName:  emp.FullName,
			SiteID:    emp.SiteID,
			Role:      emp.Role,
			AvatarURL: emp.AvatarURL,
		}
		if err := s.deps.Remembered.Save(ctx, s.deviceID, remembered); err != nil {
			log.Printf("kiosk %s: remember-me save failed: %v", s.deviceID, err)
		} else {
			s.remembered = &remembered
		}
	}
	return nil
}

// EmployeeSignOut closes the employee's open record, erases the remembered
// record for this device, and lands on the success screen.
func (s *Session) EmployeeSignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.employee == nil {
		return domain.Errf(domain.ValidationFailed, "session.employee", "no employee signed in")
	}
	if err := s.advanceLocked(domain.ActionEmployeeLeave); err != nil {
		return err
	}
	// Presence records carry the employee id, not a visitor email.
	if _, err := s.deps.SignIns.CloseLatest(ctx, s.employee.ID, s.employee.SiteID); err != nil {
		log.Printf("kiosk %s: employee sign-out record failed: %v", s.deviceID, err)
	}
	if s.deps.Remembered != nil {
		if err := s.deps.Remembered.Clear(ctx, s.deviceID); err != nil {
			log.Printf("kiosk %s: remembered-session clear failed: %v", s.deviceID, err)
		}
	}
	s.remembered = nil
	s.employee = nil
	return nil
}

// ForgetDevice erases the remembered employee without changing mode.
func (s *Session) ForgetDevice(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deps.Remembered != nil {
		if err := s.deps.Remembered.Clear(ctx, s.deviceID); err != nil {
			return domain.WrapErr(domain.UpstreamFailure, "session.forget", err)
		}
	}
	s.remembered = nil
	return nil
}

// Back cancels the current flow before any commit: camera and timers stop
// synchronously and drafts are discarded.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.advanceLocked(domain.ActionBack); err != nil {
		return err
	}
	s.resetDraftsLocked()
	return nil
}

// Finish acknowledges the success screen and returns home. Transient drafts
// are cleared; the remembered-session store is not.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.advanceLocked(domain.ActionFinish); err != nil {
		return err
	}
	s.resetDraftsLocked()
	s.lastBadge = ""
	return nil
}

// ResetToHome forces the terminal back to home from any post-unlock mode.
func (s *Session) ResetToHome() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == domain.ModeHome {
		s.resetDraftsLocked()
		return nil
	}
	if err := s.advanceLocked(domain.ActionReset); err != nil {
		return err
	}
	s.resetDraftsLocked()
	return nil
}

// Snapshot is the read model the terminal renders from.
type Snapshot struct {
	Mode              domain.Mode                `json:"mode"`
	Site              *domain.Site               `json:"site,omitempty"`
	Resolution        *Resolution                `json:"resolution,omitempty"`
	GeoError          string                     `json:"geo_error,omitempty"`
	DetectingLocation bool                       `json:"detecting_location"`
	Sites             []domain.Site              `json:"sites,omitempty"`
	Categories        []domain.Category          `json:"categories,omitempty"`
	Hosts             []domain.Host              `json:"hosts,omitempty"`
	Draft             *domain.VisitorDraft       `json:"draft,omitempty"`
	Training          domain.TrainingProgress    `json:"training"`
	Bookings          []domain.Booking           `json:"bookings,omitempty"`
	SelectedBooking   *domain.Booking            `json:"selected_booking,omitempty"`
	CameraLive        bool                       `json:"camera_live"`
	PhotoTaken        bool                       `json:"photo_taken"`
	Remembered        *domain.RememberedEmployee `json:"remembered,omitempty"`
	Employee          *domain.Employee           `json:"employee,omitempty"`
	Badge             string                     `json:"badge,omitempty"`
	LastError         string                     `json:"last_error,omitempty"`
}

// Snapshot returns the current session read model.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Mode:              s.mode,
		Site:              s.site,
		Resolution:        s.resolved,
		GeoError:          s.geoErr,
		DetectingLocation: s.detectingLocation,
		Sites:             s.sites,
		Categories:        s.categories,
		Hosts:             s.hosts,
		Draft:             s.draft,
		Training:          s.gate.Progress(),
		Bookings:          s.bookings,
		SelectedBooking:   s.selectedBooking,
		CameraLive:        s.camera.Live(),
		PhotoTaken:        s.photo != nil,
		Remembered:        s.remembered,
		Employee:          s.employee,
		Badge:             s.lastBadge,
		LastError:         s.lastError,
	}
}

// newBadgeNumber generates a badge identifier of the form V followed by six
// digits, only ever at the final commit step.
func newBadgeNumber() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return fmt.Sprintf("V%06d", time.Now().UnixNano()%1000000)
	}
	return fmt.Sprintf("V%06d", n.Int64())
}

func marshalNotice(evt ports.HostNoticeEvent) ([]byte, error) {
	return json.Marshal(evt)
}
