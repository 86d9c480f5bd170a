package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CooldownStore persists the last order time per symbol across restarts
type CooldownStore interface {
	LastTrade(symbol string) (time.Time, bool)
	MarkTrade(symbol string, t time.Time) error
}

// FileCooldownStore is the default ledger: a JSON map of symbol to unix
// seconds, written atomically via a temp file and rename.
type FileCooldownStore struct {
	mu   sync.Mutex
	path string
	data map[string]int64
}

// NewFileCooldownStore loads the ledger from path, starting empty when
// the file does not exist.
func NewFileCooldownStore(path string) (*FileCooldownStore, error) {
	s := &FileCooldownStore{path: path, data: make(map[string]int64)}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading cooldown ledger: %w", err)
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parsing cooldown ledger: %w", err)
	}
	return s, nil
}

// LastTrade returns the recorded last order time for a symbol.
func (s *FileCooldownStore) LastTrade(symbol string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts, ok := s.data[symbol]
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(ts, 0), true
}

// MarkTrade records an order time and persists the ledger.
func (s *FileCooldownStore) MarkTrade(symbol string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[symbol] = t.Unix()
	return s.flushLocked()
}

func (s *FileCooldownStore) flushLocked() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cooldown ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".cooldown-*.json")
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing cooldown ledger: %w", err)
	}
	return nil
}
