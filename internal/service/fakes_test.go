package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"corp-access/internal/domain"
	"corp-access/internal/repository"
)

// fakeAccountsRepo in-memory AccountsRepo，足够覆盖服务层测试
type fakeAccountsRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	samples  []domain.TrafficSample
}

func newFakeAccountsRepo() *fakeAccountsRepo {
	return &fakeAccountsRepo{accounts: make(map[string]*domain.Account)}
}

func (f *fakeAccountsRepo) Upsert(ctx context.Context, acct *domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.accounts[acct.CorporateID]
	if !ok {
		cp := *acct
		cp.IsActive = true
		cp.CreatedAt = time.Now()
		f.accounts[acct.CorporateID] = &cp
		return nil
	}
	existing.PanelUsername = acct.PanelUsername
	existing.AuthKey = acct.AuthKey
	existing.SubscriptionURL = acct.SubscriptionURL
	existing.ConnectionURL = acct.ConnectionURL
	existing.IsActive = true
	return nil
}

func (f *fakeAccountsRepo) GetByCorporateID(ctx context.Context, corporateID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[corporateID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *acct
	return &cp, nil
}

func (f *fakeAccountsRepo) GetByMessagingID(ctx context.Context, messagingID string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acct := range f.accounts {
		if acct.MessagingID == messagingID {
			cp := *acct
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAccountsRepo) BindMessaging(ctx context.Context, corporateID, messagingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, acct := range f.accounts {
		if acct.MessagingID == messagingID && id != corporateID {
			return domain.ErrAlreadyLinked
		}
	}
	acct, ok := f.accounts[corporateID]
	if !ok {
		acct = &domain.Account{CorporateID: corporateID, IsActive: true, CreatedAt: time.Now()}
		f.accounts[corporateID] = acct
	}
	acct.MessagingID = messagingID
	return nil
}

func (f *fakeAccountsRepo) Deactivate(ctx context.Context, corporateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[corporateID]
	if !ok {
		return domain.ErrNotFound
	}
	acct.IsActive = false
	return nil
}

func (f *fakeAccountsRepo) IncrementAuthAttempts(ctx context.Context, corporateID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[corporateID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	acct.AuthAttempts++
	return acct.AuthAttempts, nil
}

func (f *fakeAccountsRepo) Lock(ctx context.Context, corporateID string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[corporateID]
	if !ok {
		return domain.ErrNotFound
	}
	acct.LockedUntil = &until
	return nil
}

func (f *fakeAccountsRepo) LockedUntil(ctx context.Context, corporateID string) (*time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[corporateID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return acct.LockedUntil, nil
}

func (f *fakeAccountsRepo) ResetAuthState(ctx context.Context, corporateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.accounts[corporateID]; ok {
		acct.AuthAttempts = 0
		acct.LockedUntil = nil
	}
	return nil
}

func (f *fakeAccountsRepo) RecordUsage(ctx context.Context, corporateID string, uploadBytes, downloadBytes int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[corporateID]
	if !ok {
		return domain.ErrNotFound
	}
	if uploadBytes > acct.TotalUpload {
		acct.TotalUpload = uploadBytes
	}
	if downloadBytes > acct.TotalDownload {
		acct.TotalDownload = downloadBytes
	}
	now := time.Now()
	acct.LastAccess = &now
	f.samples = append(f.samples, domain.TrafficSample{
		CorporateID:   corporateID,
		Username:      acct.PanelUsername,
		UploadBytes:   uploadBytes,
		DownloadBytes: downloadBytes,
		Timestamp:     now,
	})
	return nil
}

// fakeEventsRepo in-memory EventsRepo.
type fakeEventsRepo struct {
	mu     sync.Mutex
	nextID int64
	events []domain.WebhookEvent
}

func (f *fakeEventsRepo) Insert(ctx context.Context, eventType, corporateID, eventData, traceID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.events = append(f.events, domain.WebhookEvent{
		ID:          f.nextID,
		EventType:   eventType,
		CorporateID: corporateID,
		EventData:   eventData,
		TraceID:     traceID,
		CreatedAt:   time.Now(),
	})
	return f.nextID, nil
}

func (f *fakeEventsRepo) Pending(ctx context.Context) ([]domain.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WebhookEvent
	for _, ev := range f.events {
		if !ev.Processed {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeEventsRepo) MarkProcessed(ctx context.Context, eventID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.events {
		if f.events[i].ID == eventID && !f.events[i].Processed {
			now := time.Now()
			f.events[i].Processed = true
			f.events[i].ProcessedAt = &now
			return nil
		}
	}
	return domain.ErrNotFound
}

// fakeRegistryRepo in-memory RegistryRepo.
type fakeRegistryRepo struct {
	mu    sync.Mutex
	rows  map[string]*domain.CorporateIdentifier
	audit []string
}

func newFakeRegistryRepo() *fakeRegistryRepo {
	return &fakeRegistryRepo{rows: make(map[string]*domain.CorporateIdentifier)}
}

func (f *fakeRegistryRepo) Create(ctx context.Context, id, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[id]; ok {
		return repository.ErrDuplicateID
	}
	f.rows[id] = &domain.CorporateIdentifier{
		ID:       id,
		Owner:    owner,
		Status:   domain.IDStatusIssued,
		IssuedAt: time.Now(),
	}
	return nil
}

func (f *fakeRegistryRepo) Get(ctx context.Context, id string) (*domain.CorporateIdentifier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRegistryRepo) SetStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	rec.Status = status
	rec.UpdatedAt = &now
	return nil
}

func (f *fakeRegistryRepo) Search(ctx context.Context, query string, limit int) ([]domain.CorporateIdentifier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := strings.ToLower(query)
	var out []domain.CorporateIdentifier
	for _, rec := range f.rows {
		if strings.Contains(strings.ToLower(rec.ID), q) ||
			strings.Contains(strings.ToLower(rec.Owner), q) ||
			strings.Contains(strings.ToLower(rec.Status), q) {
			out = append(out, *rec)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRegistryRepo) List(ctx context.Context, limit int) ([]domain.CorporateIdentifier, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CorporateIdentifier
	for _, rec := range f.rows {
		out = append(out, *rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRegistryRepo) Audit(ctx context.Context, id, action, actor, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audit = append(f.audit, id+":"+action+":"+actor)
	return nil
}

// fakeAuditRepo collects log entries for assertions.
type fakeAuditRepo struct {
	mu       sync.Mutex
	authLogs []domain.AuthLogEntry
	monitor  []domain.MonitorEvent
}

func (f *fakeAuditRepo) LogAuth(ctx context.Context, entry domain.AuthLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authLogs = append(f.authLogs, entry)
	return nil
}

func (f *fakeAuditRepo) AuthLogs(ctx context.Context, corporateID string, limit int) ([]domain.AuthLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.AuthLogEntry
	for _, e := range f.authLogs {
		if e.CorporateID == corporateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditRepo) LogMonitor(ctx context.Context, component, level, message, details string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.monitor = append(f.monitor, domain.MonitorEvent{
		Component: component,
		Level:     level,
		Message:   message,
		Details:   details,
	})
	return nil
}

func (f *fakeAuditRepo) monitorMessages(component string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, e := range f.monitor {
		if e.Component == component {
			out = append(out, e.Message)
		}
	}
	return out
}

// fakePanel scripted Panel implementation.
type fakePanel struct {
	mu        sync.Mutex
	accounts  map[string]*PanelAccount
	usage     map[string]*PanelUsage
	pingErr   error
	pingCalls int
	createErr error
	setErr    error
}

func newFakePanel() *fakePanel {
	return &fakePanel{
		accounts: make(map[string]*PanelAccount),
		usage:    make(map[string]*PanelUsage),
	}
}

func (f *fakePanel) CreateAccount(ctx context.Context, username string) (*PanelAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	acct := &PanelAccount{Username: username, AuthKey: "key-" + username, Enabled: true}
	f.accounts[username] = acct
	return acct, nil
}

func (f *fakePanel) GetAccount(ctx context.Context, username string) (*PanelAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return acct, nil
}

func (f *fakePanel) SetEnabled(ctx context.Context, username string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	if acct, ok := f.accounts[username]; ok {
		acct.Enabled = enabled
	}
	return nil
}

func (f *fakePanel) GetUsage(ctx context.Context, username string) (*PanelUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.usage[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakePanel) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingCalls++
	return f.pingErr
}

func (f *fakePanel) setPingErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// fakeNotifier records admin alerts.
type fakeNotifier struct {
	mu     sync.Mutex
	alerts []string
	err    error
}

func (f *fakeNotifier) NotifyAdmins(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.alerts = append(f.alerts, text)
	return nil
}

func (f *fakeNotifier) alertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.alerts)
}
