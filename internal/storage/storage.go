package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Storage keys
const (
	keySettings       = "settings"
	keyAnalysisPrefix = "analysis/"
)

// Settings stores the engine options that survive a restart.
type Settings struct {
	KingSafetyWeight int       `json:"king_safety_weight"`
	MoveOverheadMs   int       `json:"move_overhead_ms"`
	AnalysisLog      bool      `json:"analysis_log"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DefaultSettings returns the settings of a fresh install.
func DefaultSettings() *Settings {
	return &Settings{
		KingSafetyWeight: 0,
		MoveOverheadMs:   30,
		AnalysisLog:      true,
	}
}

// MoveOverhead returns the overhead as a duration.
func (s *Settings) MoveOverhead() time.Duration {
	return time.Duration(s.MoveOverheadMs) * time.Millisecond
}

// AnalysisRecord is the outcome of one completed search.
type AnalysisRecord struct {
	FEN        string    `json:"fen"`
	BestMove   string    `json:"best_move"`
	Score      int       `json:"score"`
	Depth      int       `json:"depth"`
	Nodes      uint64    `json:"nodes"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Ranking    []string  `json:"ranking,omitempty"`
	SearchedAt time.Time `json:"searched_at"`
}

// Store wraps BadgerDB for persistent storage
type Store struct {
	db *badger.DB
}

// Open opens the database in dir. An empty dir uses the default data
// directory.
func Open(dir string) (*Store, error) {
	if dir == "" {
		var err error
		if dir, err = DatabaseDir(); err != nil {
			return nil, err
		}
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that never touches disk.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// get decodes key into v and reports whether the key exists.
func (s *Store) get(key string, v any) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	return found, err
}

// SaveSettings saves engine settings
func (s *Store) SaveSettings(settings *Settings) error {
	settings.UpdatedAt = time.Now()
	return s.put(keySettings, settings)
}

// LoadSettings loads engine settings, returns defaults if not found
func (s *Store) LoadSettings() (*Settings, error) {
	settings := DefaultSettings()
	if _, err := s.get(keySettings, settings); err != nil {
		return DefaultSettings(), fmt.Errorf("load settings: %w", err)
	}
	return settings, nil
}

// RecordAnalysis stores rec as the latest analysis of its position.
func (s *Store) RecordAnalysis(rec AnalysisRecord) error {
	if rec.FEN == "" {
		return errors.New("record analysis: empty FEN")
	}
	if rec.SearchedAt.IsZero() {
		rec.SearchedAt = time.Now()
	}
	return s.put(keyAnalysisPrefix+rec.FEN, rec)
}

// LookupAnalysis returns the latest analysis of fen, if any.
func (s *Store) LookupAnalysis(fen string) (AnalysisRecord, bool, error) {
	var rec AnalysisRecord
	found, err := s.get(keyAnalysisPrefix+fen, &rec)
	return rec, found, err
}

// CountAnalyses returns the number of analysed positions.
func (s *Store) CountAnalyses() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyAnalysisPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
