package session

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
)

// snapshot is the durable form of the whole store: every session plus the
// caller-to-session index, written as one JSON document.
type snapshot struct {
	Sessions    map[string]*Session `json:"sessions"`
	MemberIndex map[string]string   `json:"memberIndex"`
}

// persistLocked writes a best-effort snapshot. Failures are logged and
// swallowed: in-memory state stays authoritative for the running process.
// Callers must hold mu.
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}
	if err := writeSnapshot(s.path, snapshot{Sessions: s.sessions, MemberIndex: s.memberIndex}); err != nil {
		log.Printf("session: save snapshot: %v", err)
	}
}

// writeSnapshot replaces the snapshot file atomically via temp file + rename
// so a crash mid-write never leaves a truncated document behind.
func writeSnapshot(path string, snap snapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "sessions-*.json")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	ok = true
	return nil
}

// loadSnapshot restores state from disk. A missing, empty or corrupt file
// means starting empty; that is never fatal.
func (s *Store) loadSnapshot() {
	if s.path == "" {
		return
	}

	f, err := os.Open(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("session: open snapshot: %v", err)
		}
		return
	}
	defer f.Close()

	var snap snapshot
	if err := json.NewDecoder(f).Decode(&snap); err != nil {
		if !errors.Is(err, io.EOF) {
			log.Printf("session: decode snapshot, starting empty: %v", err)
		}
		return
	}

	if snap.Sessions != nil {
		s.sessions = snap.Sessions
	}
	if snap.MemberIndex != nil {
		s.memberIndex = snap.MemberIndex
	}
}
