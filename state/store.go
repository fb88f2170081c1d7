package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog/log"
	"github.com/ulikunitz/xz"
)

// ErrCorrupt wraps any load failure that means the document cannot be
// trusted. It is fatal for the cycle.
var ErrCorrupt = errors.New("state file corrupt")

// Store persists the account document with an advisory lock around every
// read-modify-write. A second process (the manual control tool) shares the
// same lock file, so the engine and the operator never interleave writes.
type Store struct {
	path    string
	backups int
	fl      *flock.Flock
}

// NewStore creates a store for the document at path. lockPath defaults to
// path + ".lock". backups bounds how many xz-compressed previous versions
// are kept next to the document.
func NewStore(path, lockPath string, backups int) *Store {
	if lockPath == "" {
		lockPath = path + ".lock"
	}
	return &Store{
		path:    path,
		backups: backups,
		fl:      flock.New(lockPath),
	}
}

// Lock acquires the advisory lock, waiting up to timeout. Callers must
// release via Unlock on every exit path, including signals.
func (s *Store) Lock(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := s.fl.TryLock()
		if err != nil {
			return fmt.Errorf("acquire state lock: %w", err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("state lock held by another process (%s)", s.fl.Path())
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Unlock releases the advisory lock. Safe to call when not held.
func (s *Store) Unlock() {
	_ = s.fl.Unlock()
}

// Exists reports whether a document has been written before.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads, validates, and migrates the account document. A missing file
// returns os.ErrNotExist so the caller can decide to seed a first-run
// account; any other failure wraps ErrCorrupt.
func (s *Store) Load() (*Account, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	acct := &Account{}
	if err := json.Unmarshal(data, acct); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	acct.migrate()
	if err := acct.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return acct, nil
}

// Save atomically replaces the document: write to a temp file in the same
// directory, fsync, rename. The previous version is archived compressed
// before the rename so a bad hand-edit is always recoverable.
func (s *Store) Save(acct *Account) error {
	if err := acct.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid state: %w", err)
	}

	data, err := json.MarshalIndent(acct, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if s.backups > 0 {
		if err := s.archivePrevious(); err != nil {
			// backups are best-effort; the save itself must proceed
			log.Warn().Err(err).Str("path", s.path).Msg("state backup failed")
		}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// archivePrevious rotates path.1.xz .. path.N.xz and compresses the current
// document into slot 1.
func (s *Store) archivePrevious() error {
	cur, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // first save, nothing to archive
		}
		return err
	}

	for i := s.backups; i > 1; i-- {
		older := fmt.Sprintf("%s.%d.xz", s.path, i-1)
		newer := fmt.Sprintf("%s.%d.xz", s.path, i)
		if _, err := os.Stat(older); err == nil {
			if err := os.Rename(older, newer); err != nil {
				return err
			}
		}
	}

	f, err := os.Create(fmt.Sprintf("%s.1.xz", s.path))
	if err != nil {
		return err
	}
	w, err := xz.NewWriter(f)
	if err != nil {
		f.Close()
		return err
	}
	if _, err := w.Write(cur); err != nil {
		w.Close()
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadBackup decompresses archived version n (1 is the most recent).
func (s *Store) LoadBackup(n int) (*Account, error) {
	f, err := os.Open(fmt.Sprintf("%s.%d.xz", s.path, n))
	if err != nil {
		return nil, fmt.Errorf("open backup: %w", err)
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}

	acct := &Account{}
	if err := json.NewDecoder(r).Decode(acct); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	acct.migrate()
	return acct, nil
}
