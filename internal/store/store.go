package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/hamzamsaid/hamzawi/internal/log"
)

// DefaultTitle is the placeholder title of a freshly created session.
// A generated title replaces it after the first message.
const DefaultTitle = "محادثة جديدة"

const (
	dbFile   = "hamzawi.db"
	lockFile = "hamzawi.lock"

	// Settings keys.
	keyActiveSession = "active_session"
	keyDisplayName   = "display_name"
	keyNotifications = "notifications_enabled"
)

// schema creates the two tables backing the store. Messages are stored as
// one JSON document per session; settings is a flat key/value table.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    persona_id TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    messages TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;
`

// TitleGenerator produces a short session title from the first prompt.
// Wired to the AI adapter by the application; nil disables titling.
type TitleGenerator func(ctx context.Context, prompt string) (string, error)

// Store holds the session list in memory and mirrors every mutation to
// SQLite best-effort. Safe for concurrent use.
type Store struct {
	logger log.Logger

	mu       sync.Mutex
	db       *sql.DB
	lock     *flock.Flock
	sessions []Session // newest first
	active   string
	settings map[string]string
	subs     []func()

	titleGen TitleGenerator
	titleWG  sync.WaitGroup
}

// Open opens (creating if needed) the session database under dataDir and
// loads all sessions into memory. A file lock is taken so a second
// instance fails fast instead of corrupting the database.
func Open(dataDir string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}

	lock := flock.New(filepath.Join(dataDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring data lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another instance", dataDir)
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, dbFile))
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{
		logger:   logger,
		db:       db,
		lock:     lock,
		settings: make(map[string]string),
	}

	if err := s.loadAll(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return s, nil
}

// loadAll reads sessions and settings into memory. Malformed session rows
// are logged and skipped; they never fail the load.
func (s *Store) loadAll() error {
	rows, err := s.db.Query(`
		SELECT id, title, persona_id, created_at, updated_at, messages
		FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sess                 Session
			createdAt, updatedAt int64
			messagesJSON         string
		)
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.PersonaID, &createdAt, &updatedAt, &messagesJSON); err != nil {
			s.logger.Warn("skipping unreadable session row", "error", err)
			continue
		}
		if err := json.Unmarshal([]byte(messagesJSON), &sess.Messages); err != nil {
			s.logger.Warn("skipping session with corrupt messages", "id", sess.ID, "error", err)
			continue
		}
		sess.CreatedAt = time.UnixMicro(createdAt)
		sess.UpdatedAt = time.UnixMicro(updatedAt)
		s.sessions = append(s.sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating session rows: %w", err)
	}

	settingRows, err := s.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return fmt.Errorf("querying settings: %w", err)
	}
	defer settingRows.Close()

	for settingRows.Next() {
		var k, v string
		if err := settingRows.Scan(&k, &v); err != nil {
			s.logger.Warn("skipping unreadable setting", "error", err)
			continue
		}
		s.settings[k] = v
	}
	if err := settingRows.Err(); err != nil {
		return fmt.Errorf("iterating settings: %w", err)
	}

	// Restore the active session; drop the pointer if it no longer exists.
	if id := s.settings[keyActiveSession]; id != "" {
		if _, ok := s.findLocked(id); ok {
			s.active = id
		}
	}
	if s.active == "" && len(s.sessions) > 0 {
		s.active = s.sessions[0].ID
	}

	return nil
}

// SetTitleGenerator installs the generator used for automatic session
// titles. Must be called before the first send; nil disables titling.
func (s *Store) SetTitleGenerator(gen TitleGenerator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titleGen = gen
}

// Subscribe registers fn to run after every mutation. Callbacks run
// outside the store lock, on the mutating goroutine.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Sessions returns deep copies of all sessions, newest first.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.clone()
	}
	return out
}

// Session returns a deep copy of the session with the given ID.
func (s *Store) Session(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.findLocked(id); ok {
		return s.sessions[i].clone(), true
	}
	return Session{}, false
}

// CreateSession prepends a new empty session bound to personaID, makes it
// active, persists and returns it.
func (s *Store) CreateSession(personaID string) Session {
	now := time.Now()
	sess := Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		PersonaID: personaID,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []Message{},
	}

	s.mu.Lock()
	s.sessions = append([]Session{sess}, s.sessions...)
	s.active = sess.ID
	s.persistSessionLocked(sess)
	s.persistSettingLocked(keyActiveSession, sess.ID)
	s.mu.Unlock()

	s.notify()
	return sess.clone()
}

// DeleteSession removes the session. If it was active, the next most
// recent session becomes active (or none). Unknown IDs are a no-op.
func (s *Store) DeleteSession(id string) {
	s.mu.Lock()
	i, ok := s.findLocked(id)
	if !ok {
		s.mu.Unlock()
		return
	}

	s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
	if s.active == id {
		s.active = ""
		if len(s.sessions) > 0 {
			s.active = s.sessions[0].ID
		}
	}

	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		s.logger.Error("failed to delete session row", "id", id, "error", err)
	}
	s.persistSettingLocked(keyActiveSession, s.active)
	s.mu.Unlock()

	s.notify()
}

// UpdateSession applies a pure transformation to the session with the
// given ID and persists the result. The updater receives and must return
// a value; it never sees store-owned state. Unknown IDs are a silent
// no-op (reported by the return value) so a stale poll or title update
// cannot resurrect a deleted session.
func (s *Store) UpdateSession(id string, updater func(Session) Session) bool {
	s.mu.Lock()
	i, ok := s.findLocked(id)
	if !ok {
		s.mu.Unlock()
		return false
	}

	hadMessages := len(s.sessions[i].Messages) > 0
	updated := updater(s.sessions[i].clone())
	updated.ID = id // the identity of a session is not the updater's to change
	updated.UpdatedAt = time.Now()
	s.sessions[i] = updated
	s.persistSessionLocked(updated)

	needsTitle := s.titleGen != nil && !hadMessages &&
		len(updated.Messages) > 0 &&
		updated.Title == DefaultTitle
	var prompt string
	if needsTitle {
		prompt = firstText(updated.Messages[0])
		needsTitle = prompt != ""
	}
	if needsTitle {
		s.titleWG.Add(1)
		go s.generateTitle(id, prompt)
	}
	s.mu.Unlock()

	s.notify()
	return true
}

// generateTitle asks the TitleGenerator for a title and merges it by
// session ID, touching only the title field. Runs on its own goroutine;
// a failure keeps the placeholder title.
func (s *Store) generateTitle(id, prompt string) {
	defer s.titleWG.Done()

	s.mu.Lock()
	gen := s.titleGen
	s.mu.Unlock()

	title, err := gen(context.Background(), prompt)
	if err != nil || title == "" {
		s.logger.Warn("title generation failed", "session", id, "error", err)
		return
	}

	s.mu.Lock()
	i, ok := s.findLocked(id)
	if !ok {
		// Session deleted while the title was generating.
		s.mu.Unlock()
		return
	}
	s.sessions[i].Title = title
	s.persistSessionLocked(s.sessions[i])
	s.mu.Unlock()

	s.notify()
}

// ClearMessages empties a session's message list in place.
func (s *Store) ClearMessages(id string) {
	s.mu.Lock()
	i, ok := s.findLocked(id)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.sessions[i].Messages = []Message{}
	s.sessions[i].UpdatedAt = time.Now()
	s.persistSessionLocked(s.sessions[i])
	s.mu.Unlock()

	s.notify()
}

// ActiveSessionID returns the ID of the active session ("" = none).
func (s *Store) ActiveSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// SetActive marks the session with the given ID active. Unknown IDs are
// a no-op.
func (s *Store) SetActive(id string) {
	s.mu.Lock()
	if _, ok := s.findLocked(id); !ok {
		s.mu.Unlock()
		return
	}
	s.active = id
	s.persistSettingLocked(keyActiveSession, id)
	s.mu.Unlock()

	s.notify()
}

// DisplayName returns the user's display name ("" = unset).
func (s *Store) DisplayName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[keyDisplayName]
}

// SetDisplayName stores the user's display name.
func (s *Store) SetDisplayName(name string) {
	s.mu.Lock()
	s.settings[keyDisplayName] = name
	s.persistSettingLocked(keyDisplayName, name)
	s.mu.Unlock()

	s.notify()
}

// NotificationsEnabled reports whether video-completion notifications are
// enabled.
func (s *Store) NotificationsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings[keyNotifications] == "true"
}

// SetNotificationsEnabled stores the notification preference.
func (s *Store) SetNotificationsEnabled(enabled bool) {
	value := "false"
	if enabled {
		value = "true"
	}

	s.mu.Lock()
	s.settings[keyNotifications] = value
	s.persistSettingLocked(keyNotifications, value)
	s.mu.Unlock()

	s.notify()
}

// Close waits for in-flight title generation, closes the database and
// releases the instance lock.
func (s *Store) Close() error {
	s.titleWG.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		_ = s.lock.Unlock()
		return fmt.Errorf("closing database: %w", err)
	}
	if err := s.lock.Unlock(); err != nil {
		return fmt.Errorf("releasing data lock: %w", err)
	}
	return nil
}

// findLocked returns the index of the session with the given ID.
// Caller must hold s.mu.
func (s *Store) findLocked(id string) (int, bool) {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			return i, true
		}
	}
	return 0, false
}

// persistSessionLocked writes one session row. Failures are logged and
// swallowed; the in-memory list stays authoritative (see package docs).
// Caller must hold s.mu.
func (s *Store) persistSessionLocked(sess Session) {
	messages, err := json.Marshal(sess.Messages)
	if err != nil {
		s.logger.Error("failed to marshal messages", "id", sess.ID, "error", err)
		return
	}

	_, err = s.db.Exec(`
		REPLACE INTO sessions (id, title, persona_id, created_at, updated_at, messages)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.PersonaID,
		sess.CreatedAt.UnixMicro(), sess.UpdatedAt.UnixMicro(), string(messages))
	if err != nil {
		s.logger.Error("failed to persist session", "id", sess.ID, "error", err)
	}
}

// persistSettingLocked writes one settings row, same failure policy as
// persistSessionLocked. Caller must hold s.mu.
func (s *Store) persistSettingLocked(key, value string) {
	if _, err := s.db.Exec(`REPLACE INTO settings (key, value) VALUES (?, ?)`, key, value); err != nil {
		s.logger.Error("failed to persist setting", "key", key, "error", err)
	}
}

// notify runs subscriber callbacks outside the lock.
func (s *Store) notify() {
	s.mu.Lock()
	subs := append([]func(){}, s.subs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn()
	}
}

// firstText returns the first non-empty text part of a message.
func firstText(m Message) string {
	for _, p := range m.Parts {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}
