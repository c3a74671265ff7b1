package services

import (
	"context"
	"sync"
	"time"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

// Hand-written mocks for the collaborator ports. Each tracks calls for
// verification and supports error injection for failure scenarios.

type mockDirectory struct {
	mu         sync.Mutex
	Sites      []domain.Site
	Categories []domain.Category
	Hosts      []domain.Host

	ListSitesCalls      int
	ListCategoriesCalls []string
	ListHostsCalls      []string

	ListSitesError      error
	ListCategoriesError error
	ListHostsError      error
}

var _ ports.DirectoryRepository = (*mockDirectory)(nil)

func (m *mockDirectory) ListSites(ctx context.Context) ([]domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListSitesCalls++
	if m.ListSitesError != nil {
		return nil, m.ListSitesError
	}
	return m.Sites, nil
}

func (m *mockDirectory) ListCategories(ctx context.Context, siteID string) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCategoriesCalls = append(m.ListCategoriesCalls, siteID)
	if m.ListCategoriesError != nil {
		return nil, m.ListCategoriesError
	}
	return m.Categories, nil
}

func (m *mockDirectory) ListHosts(ctx context.Context, siteID string) ([]domain.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListHostsCalls = append(m.ListHostsCalls, siteID)
	if m.ListHostsError != nil {
		return nil, m.ListHostsError
	}
	return m.Hosts, nil
}

func (m *mockDirectory) FindHost(ctx context.Context, hostID string) (*domain.Host, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Hosts {
		if m.Hosts[i].ID == hostID {
			return &m.Hosts[i], nil
		}
	}
	return nil, domain.Errf(domain.NotFound, "mock.find_host", "no host %q", hostID)
}

type mockVisitors struct {
	mu          sync.Mutex
	UpsertCalls []domain.VisitorDraft
	UpsertError error
}

var _ ports.VisitorRepository = (*mockVisitors)(nil)

func (m *mockVisitors) Upsert(ctx context.Context, draft domain.VisitorDraft) (*domain.Visitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls = append(m.UpsertCalls, draft)
	if m.UpsertError != nil {
		return nil, m.UpsertError
	}
	return &domain.Visitor{ID: "vis-1", Email: draft.Email, FullName: draft.FullName}, nil
}

type mockTraining struct {
	mu sync.Mutex

	Completion       *domain.TrainingCompletion
	FindByEmailCalls []string
	RecordCalls      []domain.TrainingCompletion

	FindError   error
	RecordError error
}

var _ ports.TrainingRepository = (*mockTraining)(nil)

func (m *mockTraining) FindCompletionByEmail(ctx context.Context, email, categoryID string) (*domain.TrainingCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindByEmailCalls = append(m.FindByEmailCalls, email)
	if m.FindError != nil {
		return nil, m.FindError
	}
	return m.Completion, nil
}

func (m *mockTraining) RecordCompletion(ctx context.Context, completion domain.TrainingCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RecordCalls = append(m.RecordCalls, completion)
	return m.RecordError
}

type createCall struct {
	Rec     domain.SignInRecord
	Payload []byte
}

type closeCall struct {
	Key    string
	SiteID string
}

// mockSignIns keeps created records in memory and resolves CloseLatest the
// way the SQL adapter does: the key matches a visitor email through the
// email index, or the record's visitor_id directly for employee presence
// records that have no visitors row.
type mockSignIns struct {
	mu          sync.Mutex
	EmailIndex  map[string]string // lower(email) -> visitor id
	Open        []domain.SignInRecord
	CreateCalls []createCall
	CloseCalls  []closeCall

	CreateError error
	CloseError  error
}

var _ ports.SignInRepository = (*mockSignIns)(nil)

func (m *mockSignIns) Create(ctx context.Context, rec domain.SignInRecord, outboxPayload []byte) (*domain.SignInRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls = append(m.CreateCalls, createCall{Rec: rec, Payload: outboxPayload})
	if m.CreateError != nil {
		return nil, m.CreateError
	}
	created := rec
	created.CreatedAt = time.Now()
	m.Open = append(m.Open, created)
	return &created, nil
}

func (m *mockSignIns) CloseLatest(ctx context.Context, key, siteID string) (*domain.SignInRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CloseCalls = append(m.CloseCalls, closeCall{Key: key, SiteID: siteID})
	if m.CloseError != nil {
		return nil, m.CloseError
	}
	visitorID := m.EmailIndex[key]
	for i := len(m.Open) - 1; i >= 0; i-- {
		rec := &m.Open[i]
		if rec.SignedOutAt != nil || rec.Type != "in" {
			continue
		}
		if siteID != "" && rec.SiteID != siteID {
			continue
		}
		if rec.VisitorID != key && (visitorID == "" || rec.VisitorID != visitorID) {
			continue
		}
		now := time.Now()
		rec.SignedOutAt = &now
		closed := *rec
		return &closed, nil
	}
	return nil, domain.Errf(domain.NotFound, "mock.sign_out", "no open sign-in for %q", key)
}

type updateStatusCall struct {
	BookingID string
	From      domain.BookingStatus
	To        domain.BookingStatus
}

type mockBookings struct {
	mu      sync.Mutex
	Pending []domain.Booking

	FindCalls   []string
	UpdateCalls []updateStatusCall

	FindError   error
	UpdateError error
}

var _ ports.BookingRepository = (*mockBookings)(nil)

func (m *mockBookings) FindPendingByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindCalls = append(m.FindCalls, email)
	if m.FindError != nil {
		return nil, m.FindError
	}
	return m.Pending, nil
}

func (m *mockBookings) UpdateStatus(ctx context.Context, bookingID string, from, to domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls = append(m.UpdateCalls, updateStatusCall{BookingID: bookingID, From: from, To: to})
	return m.UpdateError
}

type mockRemembered struct {
	mu         sync.Mutex
	Record     *domain.RememberedEmployee
	SaveCalls  []domain.RememberedEmployee
	ClearCalls int

	SaveError  error
	LoadError  error
	ClearError error
}

var _ ports.RememberedSessionStore = (*mockRemembered)(nil)

func (m *mockRemembered) Save(ctx context.Context, deviceID string, emp domain.RememberedEmployee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveCalls = append(m.SaveCalls, emp)
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Record = &emp
	return nil
}

func (m *mockRemembered) Load(ctx context.Context, deviceID string) (*domain.RememberedEmployee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return nil, m.LoadError
	}
	return m.Record, nil
}

func (m *mockRemembered) Clear(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ClearCalls++
	if m.ClearError != nil {
		return m.ClearError
	}
	m.Record = nil
	return nil
}

type mockNotices struct {
	mu           sync.Mutex
	Events       []ports.HostNoticeEvent
	PublishError error
}

var _ ports.HostNoticePublisher = (*mockNotices)(nil)

func (m *mockNotices) PublishHostNotice(ctx context.Context, evt ports.HostNoticeEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, evt)
	return m.PublishError
}

type mockPhotos struct {
	mu         sync.Mutex
	URL        string
	StoreCalls []string

	StoreError error
}

var _ ports.PhotoStorage = (*mockPhotos)(nil)

func (m *mockPhotos) StorePhoto(ctx context.Context, visitorID string, photo domain.CapturedPhoto) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoreCalls = append(m.StoreCalls, visitorID)
	if m.StoreError != nil {
		return "", m.StoreError
	}
	if m.URL != "" {
		return m.URL, nil
	}
	return "https://photos.example/" + visitorID, nil
}

type mockPrinter struct {
	mu         sync.Mutex
	PrintCalls []domain.SignInRecord
	PrintError error
}

var _ ports.BadgePrinter = (*mockPrinter)(nil)

func (m *mockPrinter) PrintBadge(ctx context.Context, rec domain.SignInRecord, visitorName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PrintCalls = append(m.PrintCalls, rec)
	return m.PrintError
}

// fakeDevice implements ports.CameraDevice with a canned frame.
type fakeDevice struct {
	mu         sync.Mutex
	FrameData  []byte
	FrameType  string
	OpenCalls  int
	CloseCalls int

	OpenError  error
	FrameError error
}

var _ ports.CameraDevice = (*fakeDevice)(nil)

func (d *fakeDevice) Open(ctx context.Context, width, height int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OpenCalls++
	return d.OpenError
}

func (d *fakeDevice) Frame(ctx context.Context) ([]byte, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FrameError != nil {
		return nil, "", d.FrameError
	}
	contentType := d.FrameType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return d.FrameData, contentType, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CloseCalls++
	return nil
}

type fakeLocator struct {
	Coords domain.Coordinates
	Err    error
}

var _ ports.Locator = (*fakeLocator)(nil)

func (l *fakeLocator) Locate(ctx context.Context) (domain.Coordinates, error) {
	if l.Err != nil {
		return domain.Coordinates{}, l.Err
	}
	return l.Coords, nil
}

type fakeGeocoder struct {
	Name string
	Err  error
}

var _ ports.ReverseGeocoder = (*fakeGeocoder)(nil)

func (g *fakeGeocoder) PlaceName(ctx context.Context, c domain.Coordinates) (string, error) {
	if g.Err != nil {
		return "", g.Err
	}
	return g.Name, nil
}

// fakeTicker never fires on its own; tests drive the gate via advance().
type fakeTicker struct {
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) Chan() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()                  { t.stopped = true }

// newFakeTickerFactory counts ticker creations so tests can assert that a
// pre-start bypass never spins one up.
func newFakeTickerFactory() (NewTickerFunc, *int) {
	created := new(int)
	factory := func(d time.Duration) ports.Ticker {
		*created++
		return &fakeTicker{ch: make(chan time.Time)}
	}
	return factory, created
}
