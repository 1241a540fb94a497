// Package store owns all durable entities and fans change
// notifications out to in-process subscribers and to other open
// contexts of the application.
package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"civicsos/internal/domain"
	"civicsos/internal/ports"
)

// ErrNotFound is returned by update operations when the target id is
// unknown. Callers must treat it as a benign no-op, not a crash.
var ErrNotFound = errors.New("entity not found")

// SyncMessageType marks full-snapshot broadcast messages.
const SyncMessageType = "SYNC"

type database struct {
	Users         []domain.User         `json:"users"`
	Reports       []domain.Report       `json:"reports"`
	SOS           []domain.SOSAlert     `json:"sos"`
	Announcements []domain.Announcement `json:"announcements"`
}

// Options tunes store construction.
type Options struct {
	// Officials are seeded on every startup; seeding is idempotent
	// per email.
	Officials []domain.User
	// OnStorageError surfaces persistence failures as a user-visible
	// notice. The in-memory mutation still commits.
	OnStorageError func(error)
}

type listenerEntry struct {
	id int
	fn func(domain.ChangeEvent)
}

// Store is the replicated event store. Every mutation is a single
// synchronous replace-and-persist step; subscribers always observe a
// fully committed snapshot.
type Store struct {
	snap   ports.SnapshotStore
	bus    ports.SyncBus
	log    *zap.Logger
	origin string
	opts   Options

	mu      sync.Mutex
	db      database
	entropy *ulid.MonotonicEntropy

	listenersMu  sync.Mutex
	listeners    []listenerEntry
	nextListener int

	closeOnce sync.Once
	done      chan struct{}
}

// New loads the persisted snapshot (or initializes and persists a
// default one), seeds official accounts, and starts consuming
// cross-context sync messages.
func New(snap ports.SnapshotStore, bus ports.SyncBus, logger *zap.Logger, opts Options) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		snap:    snap,
		bus:     bus,
		log:     logger,
		origin:  uuid.NewString(),
		opts:    opts,
		entropy: ulid.Monotonic(rand.Reader, 0),
		done:    make(chan struct{}),
	}

	data, ok, err := snap.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if ok {
		if err := json.Unmarshal(data, &s.db); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot: %w", err)
		}
	} else {
		s.db = defaultDatabase()
	}
	s.mu.Lock()
	s.ensureOfficialsLocked()
	s.persistLocked()
	s.mu.Unlock()

	go s.consumeSync()
	return s, nil
}

// Origin identifies this context on the sync bus.
func (s *Store) Origin() string { return s.origin }

// Subscribe registers a listener invoked synchronously, in
// registration order, for every committed mutation. The returned
// function removes the listener and is safe to call during dispatch.
func (s *Store) Subscribe(fn func(domain.ChangeEvent)) func() {
	s.listenersMu.Lock()
	id := s.nextListener
	s.nextListener++
	s.listeners = append(s.listeners, listenerEntry{id: id, fn: fn})
	s.listenersMu.Unlock()

	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Users returns a defensive copy of all accounts.
func (s *Store) Users() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, len(s.db.Users))
	copy(out, s.db.Users)
	return out
}

// UpsertUser replaces the account with the same email, or appends a
// new one. Profile updates go through here.
func (s *Store) UpsertUser(u domain.User) domain.User {
	s.mu.Lock()
	replaced := false
	for i := range s.db.Users {
		if s.db.Users[i].Email == u.Email {
			s.db.Users[i] = u
			replaced = true
			break
		}
	}
	if !replaced {
		s.db.Users = append(s.db.Users, u)
	}
	s.persistLocked()
	s.mu.Unlock()
	return u
}

// ReportDraft carries caller-supplied fields for a new report.
type ReportDraft struct {
	Title       string
	Category    string
	Description string
	Address     string
	Coords      domain.Coordinates
	PhotoRef    string
	VideoRef    string
	Priority    string
}

// CreateReport prepends a new report and notifies subscribers.
func (s *Store) CreateReport(draft ReportDraft, actor domain.User) domain.Report {
	now := time.Now()
	report := domain.Report{
		Title:       draft.Title,
		Category:    draft.Category,
		Description: draft.Description,
		Status:      domain.ReportStatusUnderReview,
		CreatedAt:   now,
		Address:     draft.Address,
		Coords:      draft.Coords,
		PhotoRef:    draft.PhotoRef,
		VideoRef:    draft.VideoRef,
		Priority:    draft.Priority,
		Updates: []domain.ReportUpdate{
			{At: now, Message: "Report received by district node.", By: "District AI"},
		},
	}
	if report.Address == "" {
		report.Address = "Detected Location"
	}
	if report.Priority == "" {
		report.Priority = "Medium"
	}

	s.mu.Lock()
	report.ID = s.newIDLocked()
	s.db.Reports = append([]domain.Report{report}, s.db.Reports...)
	s.persistLocked()
	s.mu.Unlock()

	cp := cloneReport(report)
	s.dispatch(domain.ChangeEvent{Kind: domain.ChangeNewIssue, Report: &cp})
	return report
}

// ReportPatch is a partial report update; nil fields are untouched.
type ReportPatch struct {
	Status     *domain.ReportStatus
	Priority   *string
	AssignedTo *string
}

// UpdateReport merges the patch into an existing report, appends an
// audit trail entry, persists, and notifies. Returns ErrNotFound for
// an unknown id.
func (s *Store) UpdateReport(id string, patch ReportPatch, actor string) (domain.Report, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.db.Reports {
		if s.db.Reports[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return domain.Report{}, ErrNotFound
	}

	report := &s.db.Reports[idx]
	var changes []string
	if patch.Status != nil {
		report.Status = *patch.Status
		changes = append(changes, fmt.Sprintf("status set to %s", *patch.Status))
	}
	if patch.Priority != nil {
		report.Priority = *patch.Priority
		changes = append(changes, fmt.Sprintf("priority set to %s", *patch.Priority))
	}
	if patch.AssignedTo != nil {
		report.AssignedTo = *patch.AssignedTo
		changes = append(changes, fmt.Sprintf("assigned to %s", *patch.AssignedTo))
	}
	message := "Report updated."
	if len(changes) > 0 {
		message = joinChanges(changes)
	}
	report.Updates = append(report.Updates, domain.ReportUpdate{
		At: time.Now(), Message: message, By: actor,
	})
	updated := cloneReport(*report)
	s.persistLocked()
	s.mu.Unlock()

	cp := cloneReport(updated)
	s.dispatch(domain.ChangeEvent{Kind: domain.ChangeIssueUpdated, Report: &cp})
	return updated, nil
}

// Reports returns a defensive copy of all reports, newest first.
func (s *Store) Reports() []domain.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Report, len(s.db.Reports))
	for i := range s.db.Reports {
		out[i] = cloneReport(s.db.Reports[i])
	}
	return out
}

// CreateSOS publishes a new alert for the given user. Each activation
// creates exactly one alert.
func (s *Store) CreateSOS(user domain.User, mediaRef string) domain.SOSAlert {
	alert := domain.SOSAlert{
		User: domain.AlertContact{
			Name:      user.Name,
			Phone:     user.Phone,
			AvatarURL: user.AvatarURL,
		},
		CreatedAt: time.Now(),
		Address:   "Live location feed",
		Coords:    user.Location.Coords,
		Status:    domain.AlertStatusActive,
		MediaRef:  mediaRef,
	}

	s.mu.Lock()
	alert.ID = s.newIDLocked()
	s.db.SOS = append([]domain.SOSAlert{alert}, s.db.SOS...)
	s.persistLocked()
	s.mu.Unlock()

	cp := alert
	s.dispatch(domain.ChangeEvent{Kind: domain.ChangeSOSAlert, Alert: &cp})
	return alert
}

// ResolveSOS transitions an alert from Active to Resolved. The alert
// is kept for auditability. Returns ErrNotFound for an unknown id.
func (s *Store) ResolveSOS(id string, actor string) (domain.SOSAlert, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.db.SOS {
		if s.db.SOS[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return domain.SOSAlert{}, ErrNotFound
	}
	s.db.SOS[idx].Status = domain.AlertStatusResolved
	resolved := s.db.SOS[idx]
	s.persistLocked()
	s.mu.Unlock()

	s.log.Info("sos alert resolved", zap.String("id", id), zap.String("actor", actor))
	cp := resolved
	s.dispatch(domain.ChangeEvent{Kind: domain.ChangeSOSResolved, Alert: &cp})
	return resolved, nil
}

// Alerts returns a defensive copy of all SOS alerts, newest first.
func (s *Store) Alerts() []domain.SOSAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SOSAlert, len(s.db.SOS))
	copy(out, s.db.SOS)
	return out
}

// CreateAnnouncement publishes a command-center notice.
func (s *Store) CreateAnnouncement(title, content, source string) domain.Announcement {
	ann := domain.Announcement{
		Title:     title,
		Content:   content,
		Source:    source,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	ann.ID = s.newIDLocked()
	s.db.Announcements = append([]domain.Announcement{ann}, s.db.Announcements...)
	s.persistLocked()
	s.mu.Unlock()

	cp := ann
	s.dispatch(domain.ChangeEvent{Kind: domain.ChangeAnnouncement, Announcement: &cp})
	return ann
}

// Announcements returns a defensive copy of all announcements.
func (s *Store) Announcements() []domain.Announcement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Announcement, len(s.db.Announcements))
	copy(out, s.db.Announcements)
	return out
}

// Close stops sync consumption and releases the bus and snapshot
// store.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if busErr := s.bus.Close(); busErr != nil {
			err = busErr
		}
		if snapErr := s.snap.Close(); snapErr != nil && err == nil {
			err = snapErr
		}
	})
	return err
}

// persistLocked serializes the database, saves it, and broadcasts the
// snapshot to other contexts. Callers must hold s.mu. Storage
// failures degrade durability but never roll back the in-memory
// commit.
func (s *Store) persistLocked() {
	data, err := json.Marshal(s.db)
	if err != nil {
		s.log.Error("failed to encode snapshot", zap.Error(err))
		s.notifyStorageError(err)
		return
	}
	if err := s.snap.Save(data); err != nil {
		s.log.Error("failed to persist snapshot", zap.Error(err))
		s.notifyStorageError(err)
	}
	msg := ports.SyncMessage{
		ID:      uuid.NewString(),
		Type:    SyncMessageType,
		Origin:  s.origin,
		Payload: data,
	}
	if err := s.bus.Publish(msg); err != nil {
		s.log.Warn("failed to broadcast snapshot", zap.Error(err))
	}
}

func (s *Store) notifyStorageError(err error) {
	if s.opts.OnStorageError != nil {
		s.opts.OnStorageError(err)
	}
}

// dispatch invokes every listener over a stable snapshot of the
// listener list, so subscribing or unsubscribing during dispatch
// never skips or double-delivers to others.
func (s *Store) dispatch(event domain.ChangeEvent) {
	s.listenersMu.Lock()
	snapshot := make([]listenerEntry, len(s.listeners))
	copy(snapshot, s.listeners)
	s.listenersMu.Unlock()

	for _, entry := range snapshot {
		entry.fn(event)
	}
}

// consumeSync replaces the in-memory snapshot whenever another
// context broadcasts, persists the replacement locally, and re-raises
// a synthetic remote-change notification.
func (s *Store) consumeSync() {
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.bus.Messages():
			if !ok {
				return
			}
			if msg.Type != SyncMessageType || msg.Origin == s.origin {
				continue
			}
			var incoming database
			if err := json.Unmarshal(msg.Payload, &incoming); err != nil {
				s.log.Warn("ignoring malformed sync message", zap.Error(err))
				continue
			}
			s.mu.Lock()
			s.db = incoming
			if err := s.snap.Save(msg.Payload); err != nil {
				s.log.Error("failed to persist synced snapshot", zap.Error(err))
			}
			s.mu.Unlock()
			s.dispatch(domain.ChangeEvent{Kind: domain.ChangeRemoteSync})
		}
	}
}

func (s *Store) newIDLocked() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func cloneReport(r domain.Report) domain.Report {
	out := r
	out.Updates = make([]domain.ReportUpdate, len(r.Updates))
	copy(out.Updates, r.Updates)
	return out
}

func joinChanges(changes []string) string {
	msg := changes[0]
	for _, c := range changes[1:] {
		msg += "; " + c
	}
	return msg + "."
}
