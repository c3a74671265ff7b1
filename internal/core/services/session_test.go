package services

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/metrics"
)

var badgePattern = regexp.MustCompile(`^V\d{6}$`)

type sessionFixture struct {
	session    *Session
	directory  *mockDirectory
	visitors   *mockVisitors
	training   *mockTraining
	signIns    *mockSignIns
	bookings   *mockBookings
	remembered *mockRemembered
	notices    *mockNotices
	photos     *mockPhotos
	printer    *mockPrinter
	device     *fakeDevice
	locator    *fakeLocator
	metrics    *metrics.Metrics
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	fx := &sessionFixture{
		directory: &mockDirectory{
			Sites: []domain.Site{
				{
					ID:          "site-1",
					Name:        "Harbor Plant",
					Coordinates: &domain.Coordinates{Latitude: 52.38, Longitude: 4.90},
					Settings: domain.SiteSettings{
						DistanceUnit:      domain.UnitMetric,
						NotifyHosts:       true,
						PrintBadges:       true,
						TrainingValidDays: 30,
					},
				},
				{
					ID:          "site-2",
					Name:        "South Depot",
					Coordinates: &domain.Coordinates{Latitude: 48.85, Longitude: 2.35},
				},
			},
			Categories: []domain.Category{
				{ID: "cat-contractor", SiteID: "site-1", Name: "Contractor", RequiresTraining: true},
				{ID: "cat-guest", SiteID: "site-1", Name: "Guest"},
			},
			Hosts: []domain.Host{
				{ID: "host-1", SiteID: "site-1", FullName: "Robin Vos", Email: "robin@example.com"},
			},
		},
		visitors:   &mockVisitors{},
		training:   &mockTraining{},
		signIns:    &mockSignIns{},
		bookings:   &mockBookings{},
		remembered: &mockRemembered{},
		notices:    &mockNotices{},
		photos:     &mockPhotos{},
		printer:    &mockPrinter{},
		device:     &fakeDevice{FrameData: []byte("frame")},
		locator:    &fakeLocator{Coords: domain.Coordinates{Latitude: 52.37, Longitude: 4.89}},
	}

	fx.metrics = metrics.New(prometheus.NewRegistry())

	tickers, _ := newFakeTickerFactory()
	fx.session = NewSession("device-1", SessionDeps{
		Directory:  fx.directory,
		Visitors:   fx.visitors,
		Training:   fx.training,
		SignIns:    fx.signIns,
		Bookings:   fx.bookings,
		Remembered: fx.remembered,
		Notices:    fx.notices,
		Photos:     fx.photos,
		Printer:    fx.printer,
		Camera:     fx.device,
		Resolver:   NewGeoResolver(fx.locator, nil),
		Metrics:    fx.metrics,
		NewTicker:  tickers,
		Now:        func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) },
	})
	return fx
}

func (fx *sessionFixture) unlock(t *testing.T) {
	t.Helper()
	if err := fx.session.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock failed: %v", err)
	}
}

func (fx *sessionFixture) startSignIn(t *testing.T) {
	t.Helper()
	fx.unlock(t)
	if err := fx.session.SelectSite("site-1"); err != nil {
		t.Fatalf("site select failed: %v", err)
	}
	if err := fx.session.Choose(context.Background(), domain.ActionChooseSignIn); err != nil {
		t.Fatalf("choose sign-in failed: %v", err)
	}
}

func contractorDraft() domain.VisitorDraft {
	return domain.VisitorDraft{
		FullName:   "Jordan Blake",
		Email:      "Jordan@Example.com",
		CategoryID: "cat-contractor",
		HostID:     "host-1",
		Company:    "Blake Electrical",
	}
}

func guestDraft() domain.VisitorDraft {
	return domain.VisitorDraft{
		FullName:   "Sam Rivera",
		Email:      "sam@example.com",
		CategoryID: "cat-guest",
	}
}

func TestSession_ContractorFlowEndToEnd(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)

	if err := fx.session.SubmitSignIn(context.Background(), contractorDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeTraining {
		t.Fatalf("expected training mode, got %q", got)
	}
	if len(fx.training.FindByEmailCalls) != 1 || fx.training.FindByEmailCalls[0] != "jordan@example.com" {
		t.Errorf("completion lookup not keyed by lowercased email: %v", fx.training.FindByEmailCalls)
	}
	if len(fx.notices.Events) != 1 || fx.notices.Events[0].Kind != ports.NoticeTrainingStarted {
		t.Fatalf("expected a training_started notice, got %v", fx.notices.Events)
	}
	if fx.notices.Events[0].HostEmail != "robin@example.com" {
		t.Errorf("notice missing host email: %+v", fx.notices.Events[0])
	}

	if err := fx.session.BypassTraining(); err != nil {
		t.Fatalf("bypass failed: %v", err)
	}
	if err := fx.session.AcknowledgeTraining(); err != nil {
		t.Fatalf("acknowledge failed: %v", err)
	}
	if err := fx.session.CompleteTraining(context.Background()); err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModePhoto {
		t.Fatalf("expected photo mode, got %q", got)
	}
	if !fx.session.Snapshot().CameraLive {
		t.Error("camera should be live on entering photo mode")
	}

	if err := fx.session.CapturePhoto(context.Background()); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if fx.session.Snapshot().CameraLive {
		t.Error("capture must release the camera")
	}

	if err := fx.session.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeSuccess {
		t.Fatalf("expected success mode, got %q", got)
	}

	if len(fx.visitors.UpsertCalls) != 1 {
		t.Fatalf("expected one visitor upsert, got %d", len(fx.visitors.UpsertCalls))
	}
	if len(fx.photos.StoreCalls) != 1 || fx.photos.StoreCalls[0] != "vis-1" {
		t.Errorf("photo not stored under the upserted visitor: %v", fx.photos.StoreCalls)
	}
	if len(fx.training.RecordCalls) != 1 {
		t.Fatalf("expected a durable training completion, got %d", len(fx.training.RecordCalls))
	}
	completion := fx.training.RecordCalls[0]
	if completion.VisitorID != "vis-1" || completion.CategoryID != "cat-contractor" {
		t.Errorf("completion keyed wrong: %+v", completion)
	}
	if days := completion.ExpiresAt.Sub(completion.CompletedAt); days != 30*24*time.Hour {
		t.Errorf("expected 30-day validity, got %v", days)
	}

	if len(fx.signIns.CreateCalls) != 1 {
		t.Fatalf("expected one sign-in record, got %d", len(fx.signIns.CreateCalls))
	}
	call := fx.signIns.CreateCalls[0]
	if !badgePattern.MatchString(call.Rec.Badge) {
		t.Errorf("badge %q does not match V plus six digits", call.Rec.Badge)
	}
	if call.Rec.Type != "in" || call.Rec.SiteID != "site-1" {
		t.Errorf("unexpected record: %+v", call.Rec)
	}
	if call.Payload == nil {
		t.Error("expected an arrival notice payload alongside the record")
	}
	if len(fx.printer.PrintCalls) != 1 {
		t.Errorf("expected one badge print, got %d", len(fx.printer.PrintCalls))
	}

	snap := fx.session.Snapshot()
	if !badgePattern.MatchString(snap.Badge) {
		t.Errorf("snapshot badge %q invalid", snap.Badge)
	}

	if err := fx.session.Finish(); err != nil {
		t.Fatalf("finish failed: %v", err)
	}
	snap = fx.session.Snapshot()
	if snap.Mode != domain.ModeHome || snap.Badge != "" || snap.Draft != nil {
		t.Errorf("finish should land on a clean home screen: %+v", snap)
	}
}

func TestSession_GuestSkipsTraining(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)

	if err := fx.session.SubmitSignIn(context.Background(), guestDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModePhoto {
		t.Fatalf("expected photo mode, got %q", got)
	}
	if len(fx.training.FindByEmailCalls) != 0 {
		t.Error("non-training category must not trigger a completion lookup")
	}

	if err := fx.session.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if len(fx.training.RecordCalls) != 0 {
		t.Error("no completion must be recorded for an untrained category")
	}
	if len(fx.photos.StoreCalls) != 0 {
		t.Error("no photo was taken, nothing should be stored")
	}
}

func TestSession_BookedHostOutsideCachedListResolvedFromDirectory(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)

	// The host was added after the kiosk cached the per-site list, so the
	// notice address has to come from a directory lookup.
	fx.directory.Hosts = append(fx.directory.Hosts,
		domain.Host{ID: "host-2", SiteID: "site-1", FullName: "Mara Ilic", Email: "mara@example.com"})

	draft := guestDraft()
	draft.HostID = "host-2"
	if err := fx.session.SubmitSignIn(context.Background(), draft); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := fx.session.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if len(fx.signIns.CreateCalls) != 1 {
		t.Fatalf("expected one sign-in record, got %d", len(fx.signIns.CreateCalls))
	}
	var evt ports.HostNoticeEvent
	if err := json.Unmarshal(fx.signIns.CreateCalls[0].Payload, &evt); err != nil {
		t.Fatalf("notice payload not valid JSON: %v", err)
	}
	if evt.HostID != "host-2" || evt.HostEmail != "mara@example.com" {
		t.Errorf("expected the directory-resolved host address, got %+v", evt)
	}
}

func TestSession_ValidPriorCompletionSkipsTraining(t *testing.T) {
	fx := newSessionFixture(t)
	fx.training.Completion = &domain.TrainingCompletion{
		VisitorID:  "vis-1",
		CategoryID: "cat-contractor",
		ExpiresAt:  time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	fx.startSignIn(t)

	if err := fx.session.SubmitSignIn(context.Background(), contractorDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModePhoto {
		t.Errorf("valid completion should skip training, got %q", got)
	}
}

func TestSession_ExpiredCompletionRequiresTraining(t *testing.T) {
	fx := newSessionFixture(t)
	fx.training.Completion = &domain.TrainingCompletion{
		VisitorID:  "vis-1",
		CategoryID: "cat-contractor",
		ExpiresAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	fx.startSignIn(t)

	if err := fx.session.SubmitSignIn(context.Background(), contractorDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeTraining {
		t.Errorf("expired completion must require training, got %q", got)
	}
}

func TestSession_CompletionLookupErrorFailsSafe(t *testing.T) {
	fx := newSessionFixture(t)
	fx.training.FindError = domain.Errf(domain.UpstreamFailure, "db", "connection reset")
	fx.startSignIn(t)

	if err := fx.session.SubmitSignIn(context.Background(), contractorDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeTraining {
		t.Errorf("unreadable completion record must require training, got %q", got)
	}
}

func TestSession_SubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		draft domain.VisitorDraft
	}{
		{"missing name", domain.VisitorDraft{Email: "a@b.c", CategoryID: "cat-guest"}},
		{"missing email", domain.VisitorDraft{FullName: "A", CategoryID: "cat-guest"}},
		{"missing category", domain.VisitorDraft{FullName: "A", Email: "a@b.c"}},
		{"unknown category", domain.VisitorDraft{FullName: "A", Email: "a@b.c", CategoryID: "cat-nope"}},
		{"whitespace name", domain.VisitorDraft{FullName: "   ", Email: "a@b.c", CategoryID: "cat-guest"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newSessionFixture(t)
			fx.startSignIn(t)

			err := fx.session.SubmitSignIn(context.Background(), tt.draft)
			if !domain.IsKind(err, domain.ValidationFailed) {
				t.Errorf("expected validation_failed, got %v", err)
			}
			if got := fx.session.Mode(); got != domain.ModeSignIn {
				t.Errorf("rejected submit must not move the mode, got %q", got)
			}
		})
	}
}

func TestSession_TrainingGateBlocksUntilWatchedAndAcknowledged(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)
	if err := fx.session.SubmitSignIn(context.Background(), contractorDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := fx.session.CompleteTraining(context.Background()); !domain.IsKind(err, domain.ValidationFailed) {
		t.Errorf("expected rejection before watching, got %v", err)
	}

	_ = fx.session.BypassTraining()
	if err := fx.session.CompleteTraining(context.Background()); !domain.IsKind(err, domain.ValidationFailed) {
		t.Errorf("expected rejection without acknowledgement, got %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeTraining {
		t.Errorf("mode must stay training on rejection, got %q", got)
	}

	_ = fx.session.AcknowledgeTraining()
	if err := fx.session.CompleteTraining(context.Background()); err != nil {
		t.Fatalf("expected pass after bypass+acknowledge: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModePhoto {
		t.Errorf("expected photo mode, got %q", got)
	}
}

func TestSession_IllegalTransitionsRejected(t *testing.T) {
	fx := newSessionFixture(t)
	fx.unlock(t)

	// Commit from home is not in the transition table.
	if err := fx.session.Commit(context.Background()); !domain.IsKind(err, domain.ValidationFailed) {
		t.Errorf("expected validation_failed, got %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeHome {
		t.Errorf("rejected action must leave the mode, got %q", got)
	}

	// A second unlock is equally illegal.
	if err := fx.session.Unlock(context.Background()); !domain.IsKind(err, domain.ValidationFailed) {
		t.Errorf("expected validation_failed on double unlock, got %v", err)
	}
}

func TestSession_UnlockCounterCountsOnlySuccesses(t *testing.T) {
	fx := newSessionFixture(t)
	fx.unlock(t)

	// The rejected re-unlock must not move the counter.
	if err := fx.session.Unlock(context.Background()); err == nil {
		t.Fatal("expected the second unlock rejected")
	}
	if got := testutil.ToFloat64(fx.metrics.Unlocks); got != 1 {
		t.Errorf("expected 1 unlock counted, got %v", got)
	}
}

func TestSession_ChooseRequiresSite(t *testing.T) {
	fx := newSessionFixture(t)
	fx.unlock(t)

	err := fx.session.Choose(context.Background(), domain.ActionChooseSignIn)
	if !domain.IsKind(err, domain.ValidationFailed) {
		t.Errorf("expected validation_failed without a site, got %v", err)
	}

	// The employee branch has no site requirement.
	if err := fx.session.Choose(context.Background(), domain.ActionChooseEmployee); err != nil {
		t.Errorf("employee login must not require a site: %v", err)
	}
}

func TestSession_CommitFailureLeavesModeForRetry(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)
	if err := fx.session.SubmitSignIn(context.Background(), guestDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	fx.visitors.UpsertError = domain.Errf(domain.UpstreamFailure, "db", "down")
	err := fx.session.Commit(context.Background())
	if !domain.IsKind(err, domain.UpstreamFailure) {
		t.Fatalf("expected upstream_failure, got %v", err)
	}
	snap := fx.session.Snapshot()
	if snap.Mode != domain.ModePhoto {
		t.Errorf("failed commit must keep photo mode, got %q", snap.Mode)
	}
	if snap.LastError == "" {
		t.Error("expected the inline error to be surfaced")
	}

	fx.visitors.UpsertError = nil
	if err := fx.session.Commit(context.Background()); err != nil {
		t.Fatalf("retry after upstream recovery failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeSuccess {
		t.Errorf("expected success after retry, got %q", got)
	}
}

func TestSession_BadgeExistsOnlyAfterCommit(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)
	if err := fx.session.SubmitSignIn(context.Background(), guestDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if snap := fx.session.Snapshot(); snap.Badge != "" {
		t.Errorf("badge %q assigned before commit", snap.Badge)
	}
	if err := fx.session.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if snap := fx.session.Snapshot(); !badgePattern.MatchString(snap.Badge) {
		t.Errorf("badge %q invalid after commit", snap.Badge)
	}
}

func TestSession_BackFromPhotoReleasesCamera(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)
	if err := fx.session.SubmitSignIn(context.Background(), guestDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if !fx.session.Snapshot().CameraLive {
		t.Fatal("camera should be live in photo mode")
	}

	if err := fx.session.Back(); err != nil {
		t.Fatalf("back failed: %v", err)
	}
	snap := fx.session.Snapshot()
	if snap.Mode != domain.ModeHome {
		t.Errorf("expected home, got %q", snap.Mode)
	}
	if snap.CameraLive {
		t.Error("camera left running after leaving photo mode")
	}
	if fx.device.CloseCalls == 0 {
		t.Error("device was never closed")
	}
	if snap.Draft != nil {
		t.Error("draft must be discarded on back")
	}
}

func TestSession_ResetClearsDraftsButNotRememberedStore(t *testing.T) {
	fx := newSessionFixture(t)
	fx.remembered.Record = &domain.RememberedEmployee{ID: "emp-9", Email: "lee@example.com", SiteID: "site-2"}
	fx.startSignIn(t)
	if err := fx.session.SubmitSignIn(context.Background(), contractorDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := fx.session.ResetToHome(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	snap := fx.session.Snapshot()
	if snap.Mode != domain.ModeHome {
		t.Errorf("expected home, got %q", snap.Mode)
	}
	if snap.Draft != nil || snap.Training.ElapsedSeconds != 0 {
		t.Error("drafts must be cleared on reset")
	}
	if snap.Remembered == nil {
		t.Error("reset must never erase the remembered employee")
	}
	if fx.remembered.ClearCalls != 0 {
		t.Error("reset must not touch the remembered-session store")
	}
}

func TestSession_AutoSignInOnSiteMatch(t *testing.T) {
	fx := newSessionFixture(t)
	fx.remembered.Record = &domain.RememberedEmployee{
		ID: "emp-9", Email: "lee@example.com", FullName: "Lee Chen", SiteID: "site-1",
	}
	fx.unlock(t)

	fx.session.RefreshLocation(context.Background())

	snap := fx.session.Snapshot()
	if snap.Mode != domain.ModeEmployeeDashboard {
		t.Fatalf("expected silent dashboard entry, got %q", snap.Mode)
	}
	if snap.Employee == nil || snap.Employee.ID != "emp-9" {
		t.Errorf("employee not populated: %+v", snap.Employee)
	}
	if len(fx.signIns.CreateCalls) != 1 {
		t.Fatalf("expected a presence record, got %d", len(fx.signIns.CreateCalls))
	}
	if rec := fx.signIns.CreateCalls[0].Rec; rec.Type != "in" || rec.VisitorID != "emp-9" {
		t.Errorf("unexpected presence record: %+v", rec)
	}
}

func TestSession_AutoSignInSkippedOnSiteMismatch(t *testing.T) {
	fx := newSessionFixture(t)
	fx.remembered.Record = &domain.RememberedEmployee{ID: "emp-9", SiteID: "site-2"}
	fx.unlock(t)

	fx.session.RefreshLocation(context.Background())

	if got := fx.session.Mode(); got != domain.ModeHome {
		t.Errorf("mismatched site must not auto sign in, got %q", got)
	}
	if len(fx.signIns.CreateCalls) != 0 {
		t.Error("no presence record expected")
	}
}

func TestSession_AutoSignInNeverInterruptsActiveFlow(t *testing.T) {
	fx := newSessionFixture(t)
	fx.remembered.Record = &domain.RememberedEmployee{ID: "emp-9", SiteID: "site-1"}
	fx.startSignIn(t)

	// Location resolves late, after a visitor already started signing in.
	fx.session.RefreshLocation(context.Background())

	if got := fx.session.Mode(); got != domain.ModeSignIn {
		t.Errorf("late resolution yanked the mode to %q", got)
	}
}

func TestSession_GeoDenialFallsBackToManualSelection(t *testing.T) {
	fx := newSessionFixture(t)
	fx.locator.Err = domain.Errf(domain.PermissionDenied, "gps", "denied")
	fx.unlock(t)

	fx.session.RefreshLocation(context.Background())

	snap := fx.session.Snapshot()
	if snap.GeoError == "" {
		t.Error("expected the geo failure surfaced inline")
	}
	if snap.DetectingLocation {
		t.Error("detection flag stuck on")
	}
	if len(snap.Sites) == 0 {
		t.Fatal("site list must stay available for manual selection")
	}
	if err := fx.session.SelectSite("site-1"); err != nil {
		t.Errorf("manual selection failed: %v", err)
	}
}

func TestSession_BookingFlowChecksIn(t *testing.T) {
	fx := newSessionFixture(t)
	fx.bookings.Pending = []domain.Booking{{
		ID:           "bk-1",
		SiteID:       "site-1",
		VisitorName:  "Sam Rivera",
		VisitorEmail: "sam@example.com",
		CategoryID:   "cat-guest",
		HostID:       "host-1",
		Status:       domain.BookingPending,
	}}
	fx.unlock(t)
	if err := fx.session.SelectSite("site-1"); err != nil {
		t.Fatalf("site select failed: %v", err)
	}
	if err := fx.session.Choose(context.Background(), domain.ActionChooseBooking); err != nil {
		t.Fatalf("choose booking failed: %v", err)
	}

	bookings, err := fx.session.LookupBookings(context.Background(), "Sam@Example.com")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("expected one booking, got %d", len(bookings))
	}
	if fx.bookings.FindCalls[0] != "sam@example.com" {
		t.Errorf("lookup not lowercased: %v", fx.bookings.FindCalls)
	}
	if snap := fx.session.Snapshot(); snap.SelectedBooking == nil {
		t.Fatal("single match must be auto-selected")
	}

	if err := fx.session.CheckInBooking(context.Background()); err != nil {
		t.Fatalf("check-in failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModePhoto {
		t.Fatalf("guest booking should go straight to photo, got %q", got)
	}

	if err := fx.session.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if len(fx.bookings.UpdateCalls) != 1 {
		t.Fatalf("expected one status update, got %d", len(fx.bookings.UpdateCalls))
	}
	update := fx.bookings.UpdateCalls[0]
	if update.BookingID != "bk-1" || update.From != domain.BookingPending || update.To != domain.BookingCheckedIn {
		t.Errorf("unexpected status update: %+v", update)
	}
	if rec := fx.signIns.CreateCalls[0].Rec; rec.BookingID != "bk-1" {
		t.Errorf("sign-in record not linked to the booking: %+v", rec)
	}
}

func TestSession_BookingLookupNotFound(t *testing.T) {
	fx := newSessionFixture(t)
	fx.unlock(t)
	if err := fx.session.SelectSite("site-1"); err != nil {
		t.Fatalf("site select failed: %v", err)
	}
	if err := fx.session.Choose(context.Background(), domain.ActionChooseBooking); err != nil {
		t.Fatalf("choose booking failed: %v", err)
	}

	_, err := fx.session.LookupBookings(context.Background(), "nobody@example.com")
	if !domain.IsKind(err, domain.NotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeBooking {
		t.Errorf("failed lookup must stay in booking mode, got %q", got)
	}
}

func TestSession_SignOutClosesLatestRecord(t *testing.T) {
	fx := newSessionFixture(t)
	fx.signIns.EmailIndex = map[string]string{"jordan@example.com": "vis-7"}
	fx.signIns.Open = []domain.SignInRecord{
		{ID: "rec-open", VisitorID: "vis-7", SiteID: "site-1", Type: "in"},
	}
	fx.unlock(t)
	if err := fx.session.SelectSite("site-1"); err != nil {
		t.Fatalf("site select failed: %v", err)
	}
	if err := fx.session.Choose(context.Background(), domain.ActionChooseSignOut); err != nil {
		t.Fatalf("choose sign-out failed: %v", err)
	}

	if err := fx.session.SubmitSignOut(context.Background(), "Jordan@Example.com"); err != nil {
		t.Fatalf("sign-out failed: %v", err)
	}
	if len(fx.signIns.CloseCalls) != 1 {
		t.Fatalf("expected one close, got %d", len(fx.signIns.CloseCalls))
	}
	call := fx.signIns.CloseCalls[0]
	if call.Key != "jordan@example.com" || call.SiteID != "site-1" {
		t.Errorf("unexpected close call: %+v", call)
	}
	if fx.signIns.Open[0].SignedOutAt == nil {
		t.Error("open record not closed")
	}
	if got := fx.session.Mode(); got != domain.ModeSuccess {
		t.Errorf("expected success, got %q", got)
	}
}

func TestSession_SignOutNotFoundPassesThrough(t *testing.T) {
	fx := newSessionFixture(t)
	fx.signIns.CloseError = domain.Errf(domain.NotFound, "signins.close", "no open record")
	fx.unlock(t)
	if err := fx.session.SelectSite("site-1"); err != nil {
		t.Fatalf("site select failed: %v", err)
	}
	if err := fx.session.Choose(context.Background(), domain.ActionChooseSignOut); err != nil {
		t.Fatalf("choose sign-out failed: %v", err)
	}

	err := fx.session.SubmitSignOut(context.Background(), "ghost@example.com")
	if !domain.IsKind(err, domain.NotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeSignOut {
		t.Errorf("failed sign-out must stay in sign-out mode, got %q", got)
	}
}

func TestSession_EmployeeRememberAndSignOut(t *testing.T) {
	fx := newSessionFixture(t)
	fx.unlock(t)
	if err := fx.session.Choose(context.Background(), domain.ActionChooseEmployee); err != nil {
		t.Fatalf("choose employee failed: %v", err)
	}

	emp := domain.Employee{ID: "emp-9", Email: "Lee@Example.com", FullName: "Lee Chen", SiteID: "site-1", Role: domain.RoleEmployee}
	if err := fx.session.EmployeeAuthenticated(context.Background(), emp, true); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeEmployeeDashboard {
		t.Fatalf("expected dashboard, got %q", got)
	}
	if len(fx.remembered.SaveCalls) != 1 {
		t.Fatalf("expected the device remembered, got %d saves", len(fx.remembered.SaveCalls))
	}
	if len(fx.signIns.CreateCalls) != 1 {
		t.Errorf("expected a presence record, got %d", len(fx.signIns.CreateCalls))
	}

	if err := fx.session.EmployeeSignOut(context.Background()); err != nil {
		t.Fatalf("employee sign-out failed: %v", err)
	}
	snap := fx.session.Snapshot()
	if snap.Mode != domain.ModeSuccess {
		t.Errorf("expected success, got %q", snap.Mode)
	}
	if fx.remembered.ClearCalls != 1 {
		t.Errorf("expected the remembered record cleared, got %d", fx.remembered.ClearCalls)
	}
	if snap.Remembered != nil || snap.Employee != nil {
		t.Error("employee state must be erased on sign-out")
	}
	// The presence record carries the employee id as visitor_id with no
	// visitors row behind it, so the close must go by id, not email.
	if len(fx.signIns.CloseCalls) != 1 || fx.signIns.CloseCalls[0].Key != "emp-9" {
		t.Errorf("expected close by employee id: %v", fx.signIns.CloseCalls)
	}
	if fx.signIns.Open[0].SignedOutAt == nil {
		t.Error("employee presence record left open")
	}
}

func TestSession_EmployeeAuthenticatedWithoutRemember(t *testing.T) {
	fx := newSessionFixture(t)
	fx.unlock(t)
	if err := fx.session.Choose(context.Background(), domain.ActionChooseEmployee); err != nil {
		t.Fatalf("choose employee failed: %v", err)
	}

	emp := domain.Employee{ID: "emp-9", Email: "lee@example.com", SiteID: "site-1"}
	if err := fx.session.EmployeeAuthenticated(context.Background(), emp, false); err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if len(fx.remembered.SaveCalls) != 0 {
		t.Error("remember off must not write the store")
	}
}

func TestSession_ForgetDeviceErasesRememberedOnly(t *testing.T) {
	fx := newSessionFixture(t)
	fx.remembered.Record = &domain.RememberedEmployee{ID: "emp-9", SiteID: "site-1"}
	fx.unlock(t)

	if err := fx.session.ForgetDevice(context.Background()); err != nil {
		t.Fatalf("forget failed: %v", err)
	}
	snap := fx.session.Snapshot()
	if snap.Remembered != nil {
		t.Error("remembered employee still present")
	}
	if snap.Mode != domain.ModeHome {
		t.Errorf("forget must not change mode, got %q", snap.Mode)
	}
	if fx.remembered.ClearCalls != 1 {
		t.Errorf("expected one store clear, got %d", fx.remembered.ClearCalls)
	}
}

func TestSession_NoticeFailureNeverBlocksFlow(t *testing.T) {
	fx := newSessionFixture(t)
	fx.notices.PublishError = domain.Errf(domain.UpstreamFailure, "amqp", "broker down")
	fx.startSignIn(t)

	if err := fx.session.SubmitSignIn(context.Background(), contractorDraft()); err != nil {
		t.Fatalf("notice failure must not fail submit: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeTraining {
		t.Errorf("expected training mode, got %q", got)
	}
}

func TestSession_PrintFailureNeverFailsCommit(t *testing.T) {
	fx := newSessionFixture(t)
	fx.printer.PrintError = domain.Errf(domain.DeviceUnavailable, "printer", "offline")
	fx.startSignIn(t)
	if err := fx.session.SubmitSignIn(context.Background(), guestDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	if err := fx.session.Commit(context.Background()); err != nil {
		t.Fatalf("print failure must not fail commit: %v", err)
	}
	if got := fx.session.Mode(); got != domain.ModeSuccess {
		t.Errorf("expected success, got %q", got)
	}
}

func TestSession_RetakeDiscardsStill(t *testing.T) {
	fx := newSessionFixture(t)
	fx.startSignIn(t)
	if err := fx.session.SubmitSignIn(context.Background(), guestDraft()); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := fx.session.CapturePhoto(context.Background()); err != nil {
		t.Fatalf("capture failed: %v", err)
	}
	if !fx.session.Snapshot().PhotoTaken {
		t.Fatal("expected a captured photo")
	}

	if err := fx.session.RetakePhoto(context.Background()); err != nil {
		t.Fatalf("retake failed: %v", err)
	}
	snap := fx.session.Snapshot()
	if snap.PhotoTaken {
		t.Error("retake must discard the still")
	}
	if !snap.CameraLive {
		t.Error("retake must restart the stream")
	}
}
