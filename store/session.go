package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"worklog/auth"
	"worklog/models"
	"worklog/sheets"
	"worklog/taxonomy"
)

var (
	ErrMissingClassification = errors.New("macro category, subcategory and activity are required")
	ErrInvalidClassification = errors.New("unknown classification")
	ErrNotFound              = errors.New("activity not found")
	ErrHoursRange            = errors.New("hours must be between 0 and 24")
	ErrMinutesRange          = errors.New("minutes must be between 0 and 59")
	ErrWrongPassword         = errors.New("current password does not match")
	ErrPasswordMismatch      = errors.New("password confirmation does not match")
	// ErrFlushConflict is returned when a flush still conflicts after the
	// reload-and-replay retries. The in-memory mutation is kept.
	ErrFlushConflict = errors.New("could not reconcile with remote store")
)

// IsValidation reports whether err rejected the input itself, as opposed to
// a flush failure after the change was already applied in memory.
func IsValidation(err error) bool {
	for _, sentinel := range []error{
		ErrMissingClassification, ErrInvalidClassification, ErrNotFound,
		ErrHoursRange, ErrMinutesRange, ErrWrongPassword, ErrPasswordMismatch,
		auth.ErrPasswordTooShort,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

const flushAttempts = 3

type opKind int

const (
	opInsert opKind = iota
	opUpdate
	opDelete
)

// actMutation is one user-initiated change, kept until a flush confirms it
// landed remotely so it can be replayed onto a fresh snapshot on conflict.
type actMutation struct {
	kind opKind
	id   int
	rec  models.ActivityRecord
}

type userMutation struct {
	username string
	newHash  string
}

// Manager owns the adapter and one Session per logged-in user.
type Manager struct {
	adapter  *Adapter
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(adapter *Adapter) *Manager {
	return &Manager{adapter: adapter, sessions: make(map[string]*Session)}
}

func (m *Manager) Adapter() *Adapter {
	return m.adapter
}

// Bootstrap verifies the remote store is reachable before any interactive
// use; a failure here is fatal at the call site. An empty user table is
// seeded with a default supervisor account.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if _, _, err := m.adapter.LoadActivities(ctx); err != nil {
		return fmt.Errorf("loading activities: %w", err)
	}
	users, rev, err := m.adapter.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("loading users: %w", err)
	}
	if len(users) == 0 {
		hash, err := auth.HashPassword("admin123")
		if err != nil {
			return err
		}
		users = append(users, models.UserAccount{
			Username:     "admin",
			PasswordHash: hash,
			Role:         models.RoleSupervisor,
		})
		if _, err := m.adapter.SaveUsers(ctx, users, rev); err != nil {
			return fmt.Errorf("seeding default supervisor: %w", err)
		}
	}
	return nil
}

// Login pulls a fresh snapshot of both tables, checks the credentials
// against it and, on success, hands back a Session owning that snapshot.
// The ok result distinguishes bad credentials from a store failure.
func (m *Manager) Login(ctx context.Context, username, password string) (*Session, bool, error) {
	activities, actRev, err := m.adapter.LoadActivities(ctx)
	if err != nil {
		return nil, false, err
	}
	users, userRev, err := m.adapter.LoadUsers(ctx)
	if err != nil {
		return nil, false, err
	}

	var account *models.UserAccount
	for i := range users {
		if users[i].Username == username {
			account = &users[i]
			break
		}
	}

	if account == nil {
		// Timing mitigation: burn a bcrypt comparison anyway.
		auth.CheckPasswordHash(password, auth.DummyHash)
		return nil, false, nil
	}
	match, legacy := verifyPassword(account.PasswordHash, password)
	if !match {
		return nil, false, nil
	}

	s := &Session{
		adapter:    m.adapter,
		username:   account.Username,
		role:       account.Role,
		activities: activities,
		users:      users,
		actRev:     actRev,
		userRev:    userRev,
	}

	if legacy {
		// Upgrade the plaintext cell to a hash. Best effort: a failed
		// flush leaves the legacy cell in place for the next login.
		if hash, err := auth.HashPassword(password); err == nil {
			s.mu.Lock()
			s.applyUserMutation(userMutation{username: account.Username, newHash: hash})
			if err := s.flushUsers(ctx); err != nil {
				fmt.Printf("Warning: could not persist password upgrade for %s: %v\n", account.Username, err)
			}
			s.mu.Unlock()
		}
	}

	m.mu.Lock()
	m.sessions[account.Username] = s
	m.mu.Unlock()
	return s, true, nil
}

// Get returns the live session for a user, or nil.
func (m *Manager) Get(username string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[username]
}

// Logout best-effort flushes and drops the session. Flush failures are
// swallowed: logout always succeeds.
func (m *Manager) Logout(ctx context.Context, username string) {
	m.mu.Lock()
	s := m.sessions[username]
	delete(m.sessions, username)
	m.mu.Unlock()
	if s != nil {
		if err := s.Flush(ctx); err != nil {
			fmt.Printf("Warning: flush on logout failed for %s: %v\n", username, err)
		}
	}
}

// Session is one authenticated user's in-memory copy of both tables. All
// reads and writes during the session go through it; every mutation
// triggers an immediate flush to the remote store.
type Session struct {
	adapter  *Adapter
	username string
	role     string

	mu           sync.Mutex
	activities   []models.ActivityRecord
	users        []models.UserAccount
	actRev       int64
	userRev      int64
	pendingActs  []*actMutation
	pendingUsers []userMutation
}

func (s *Session) Username() string { return s.username }
func (s *Session) Role() string     { return s.role }

// Activities returns a copy of the session's activity table.
func (s *Session) Activities() []models.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ActivityRecord(nil), s.activities...)
}

// Mine returns the session owner's own records.
func (s *Session) Mine() []models.ActivityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ActivityRecord
	for _, r := range s.activities {
		if r.Owner == s.username {
			out = append(out, r)
		}
	}
	return out
}

// InsertActivity validates, assigns the next id, appends the record and
// flushes. The returned record carries the id that actually landed (a
// conflict replay may reassign it).
func (s *Session) InsertActivity(ctx context.Context, rec models.ActivityRecord) (models.ActivityRecord, error) {
	if err := validateActivity(rec); err != nil {
		return models.ActivityRecord{}, err
	}
	rec.Owner = s.username

	s.mu.Lock()
	defer s.mu.Unlock()

	m := &actMutation{kind: opInsert, rec: rec}
	s.activities = applyActivityMutation(s.activities, m)
	s.pendingActs = append(s.pendingActs, m)

	err := s.flushActivities(ctx)
	m.rec.ID = m.id
	return m.rec, err
}

// UpdateActivity overwrites the mutable fields of the record with the given
// id and flushes.
func (s *Session) UpdateActivity(ctx context.Context, id int, rec models.ActivityRecord) error {
	if err := validateActivity(rec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, r := range s.activities {
		if r.ID == id {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	m := &actMutation{kind: opUpdate, id: id, rec: rec}
	s.activities = applyActivityMutation(s.activities, m)
	s.pendingActs = append(s.pendingActs, m)
	return s.flushActivities(ctx)
}

// DeleteActivity removes every record with the given id and flushes.
func (s *Session) DeleteActivity(ctx context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &actMutation{kind: opDelete, id: id}
	s.activities = applyActivityMutation(s.activities, m)
	s.pendingActs = append(s.pendingActs, m)
	return s.flushActivities(ctx)
}

// ChangePassword verifies the current password, applies the policy, mutates
// the in-memory user table and flushes it.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	if newPassword != confirm {
		return ErrPasswordMismatch
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var account *models.UserAccount
	for i := range s.users {
		if s.users[i].Username == s.username {
			account = &s.users[i]
			break
		}
	}
	if account == nil {
		return ErrNotFound
	}
	if ok, _ := verifyPassword(account.PasswordHash, oldPassword); !ok {
		return ErrWrongPassword
	}

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	s.applyUserMutation(userMutation{username: s.username, newHash: hash})
	return s.flushUsers(ctx)
}

// Flush pushes both tables out, returning the first failure. Used by
// logout and by an explicit "sync now" action.
func (s *Session) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushActivities(ctx); err != nil {
		return err
	}
	return s.flushUsers(ctx)
}

// flushActivities serializes the whole in-memory table and overwrites the
// remote one. The revision guard turns the blind overwrite of the legacy
// system into compare-and-set: on mismatch the remote snapshot is reloaded,
// the session's pending mutations are replayed onto it (inserts re-derive
// their ids from the fresh table) and the write is retried. Two sessions
// inserting concurrently both keep their rows this way.
// Callers hold s.mu.
func (s *Session) flushActivities(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < flushAttempts; attempt++ {
		newRev, err := s.adapter.SaveActivities(ctx, s.activities, s.actRev)
		if err == nil {
			s.actRev = newRev
			s.pendingActs = nil
			return nil
		}
		if !errors.Is(err, sheets.ErrRevisionMismatch) {
			// Non-conflict failure: keep the local state and the pending
			// log; the next successful flush reconciles.
			return err
		}
		lastErr = err

		base, rev, loadErr := s.adapter.LoadActivities(ctx)
		if loadErr != nil {
			return loadErr
		}
		for _, m := range s.pendingActs {
			base = applyActivityMutation(base, m)
		}
		s.activities = base
		s.actRev = rev
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrFlushConflict, lastErr)
	}
	return nil
}

// Callers hold s.mu.
func (s *Session) flushUsers(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < flushAttempts; attempt++ {
		newRev, err := s.adapter.SaveUsers(ctx, s.users, s.userRev)
		if err == nil {
			s.userRev = newRev
			s.pendingUsers = nil
			return nil
		}
		if !errors.Is(err, sheets.ErrRevisionMismatch) {
			return err
		}
		lastErr = err

		base, rev, loadErr := s.adapter.LoadUsers(ctx)
		if loadErr != nil {
			return loadErr
		}
		s.users = base
		s.userRev = rev
		for _, m := range s.pendingUsers {
			s.setUserHash(m)
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrFlushConflict, lastErr)
	}
	return nil
}

// applyUserMutation records the change and applies it in memory.
// Callers hold s.mu.
func (s *Session) applyUserMutation(m userMutation) {
	s.setUserHash(m)
	s.pendingUsers = append(s.pendingUsers, m)
}

func (s *Session) setUserHash(m userMutation) {
	for i := range s.users {
		if s.users[i].Username == m.username {
			s.users[i].PasswordHash = m.newHash
		}
	}
}

// applyActivityMutation applies one mutation to a table and returns the new
// table. Inserts derive their id from the table they land in and remember
// it on the mutation.
func applyActivityMutation(table []models.ActivityRecord, m *actMutation) []models.ActivityRecord {
	switch m.kind {
	case opInsert:
		rec := m.rec
		rec.ID = nextID(table)
		m.id = rec.ID
		return append(table, rec)
	case opUpdate:
		for i := range table {
			if table[i].ID == m.id {
				updated := m.rec
				updated.ID = table[i].ID
				updated.Owner = table[i].Owner
				table[i] = updated
			}
		}
		return table
	case opDelete:
		out := table[:0]
		for _, r := range table {
			if r.ID != m.id {
				out = append(out, r)
			}
		}
		return out
	}
	return table
}

func nextID(table []models.ActivityRecord) int {
	max := 0
	for _, r := range table {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1
}

func validateActivity(rec models.ActivityRecord) error {
	if rec.MacroCategory == "" || rec.Subcategory == "" || rec.Activity == "" {
		return ErrMissingClassification
	}
	if err := taxonomy.Validate(rec.MacroCategory, rec.Subcategory, rec.Activity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidClassification, err)
	}
	if rec.Hours.Valid && (rec.Hours.Value < 0 || rec.Hours.Value > 24) {
		return ErrHoursRange
	}
	if rec.Minutes.Valid && (rec.Minutes.Value < 0 || rec.Minutes.Value > 59) {
		return ErrMinutesRange
	}
	return nil
}

// verifyPassword checks a candidate against a stored credential. Legacy
// plaintext cells compare by equality; the caller is expected to upgrade
// them on success.
func verifyPassword(stored, candidate string) (ok bool, legacy bool) {
	if auth.IsHashed(stored) {
		return auth.CheckPasswordHash(candidate, stored), false
	}
	return stored != "" && stored == candidate, true
}
