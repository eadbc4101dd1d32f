// Package session keeps the session issued by the account service, in memory
// and in the local database, the way a browser keeps its session cookie.
//
// A kept session is only a candidate: the auth state store decides whether
// it is actually recognized by the service.
package session

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/models"
	"github.com/dmitrijs2005/gophauth/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
)

const (
	keySessionID    = "session_id"
	keyUserID       = "user_id"
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyExpiresAt    = "expires_at"
)

// Keeper is safe for concurrent use.
type Keeper struct {
	// writeMu serializes Save, Clear and Discard.
	writeMu sync.Mutex

	mu      sync.RWMutex
	current *models.Session
	db      *sql.DB
	now     func() time.Time
}

// NewKeeper returns a keeper persisting into db. A nil db keeps the session
// in memory only.
func NewKeeper(db *sql.DB) *Keeper {
	return &Keeper{db: db, now: time.Now}
}

// Current returns the kept session, if any.
func (k *Keeper) Current() (models.Session, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.current == nil {
		return models.Session{}, false
	}
	return *k.current, true
}

// Save replaces the kept session and persists it in a single transaction.
func (k *Keeper) Save(ctx context.Context, s models.Session) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	if k.db != nil {
		err := dbx.WithTx(ctx, k.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := metadata.NewSQLiteRepository(tx)
			if err := repo.Clear(ctx); err != nil {
				return err
			}
			for key, value := range encode(s) {
				if err := repo.Set(ctx, key, value); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	k.mu.Lock()
	k.current = &s
	k.mu.Unlock()
	return nil
}

// Clear forgets the kept session.
func (k *Keeper) Clear(ctx context.Context) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()
	return k.clear(ctx)
}

// Discard forgets the kept session only if it is still the one identified by
// sessionID. A session saved since then is left alone.
func (k *Keeper) Discard(ctx context.Context, sessionID string) error {
	k.writeMu.Lock()
	defer k.writeMu.Unlock()

	if cur, ok := k.Current(); !ok || cur.ID != sessionID {
		return nil
	}
	return k.clear(ctx)
}

func (k *Keeper) clear(ctx context.Context) error {
	k.mu.Lock()
	k.current = nil
	k.mu.Unlock()

	if k.db == nil {
		return nil
	}
	return metadata.NewSQLiteRepository(k.db).Clear(ctx)
}

// Load restores the persisted session. It reports false when nothing usable
// was stored; an expired session is dropped from storage.
func (k *Keeper) Load(ctx context.Context) (bool, error) {
	if k.db == nil {
		_, ok := k.Current()
		return ok, nil
	}

	stored, err := metadata.NewSQLiteRepository(k.db).List(ctx)
	if err != nil {
		return false, err
	}
	s, ok := decode(stored)
	if !ok {
		return false, nil
	}
	if s.Expired(k.now()) {
		return false, k.Clear(ctx)
	}

	k.mu.Lock()
	k.current = &s
	k.mu.Unlock()
	return true, nil
}

func encode(s models.Session) map[string][]byte {
	m := map[string][]byte{
		keySessionID:    []byte(s.ID),
		keyUserID:       []byte(s.UserID),
		keyAccessToken:  []byte(s.AccessToken),
		keyRefreshToken: []byte(s.RefreshToken),
	}
	if !s.ExpiresAt.IsZero() {
		m[keyExpiresAt] = []byte(strconv.FormatInt(s.ExpiresAt.Unix(), 10))
	}
	return m
}

func decode(m map[string][]byte) (models.Session, bool) {
	s := models.Session{
		ID:           string(m[keySessionID]),
		UserID:       string(m[keyUserID]),
		AccessToken:  string(m[keyAccessToken]),
		RefreshToken: string(m[keyRefreshToken]),
	}
	if raw := m[keyExpiresAt]; len(raw) > 0 {
		if sec, err := strconv.ParseInt(string(raw), 10, 64); err == nil {
			s.ExpiresAt = time.Unix(sec, 0).UTC()
		}
	}
	return s, s.Valid()
}
