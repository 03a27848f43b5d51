package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash"
	"github.com/dgraph-io/badger/v4"
)

// Storage keys
const (
	analysisPrefix = "analysis/"
)

// ErrInvalidFEN is returned when a record key cannot be derived from a FEN.
var ErrInvalidFEN = errors.New("storage: FEN needs at least four fields")

// Analysis is the outcome of a finished search, keyed by position.
type Analysis struct {
	FEN      string    `json:"fen"`
	BestMove string    `json:"best_move"`
	Score    int       `json:"score"`
	Depth    int       `json:"depth"`
	Nodes    uint64    `json:"nodes"`
	PV       []string  `json:"pv,omitempty"`
	Searched time.Time `json:"searched"`
}

// Store wraps BadgerDB for persistent analysis records
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the store in dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open analysis store %s: %w", dir, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory analysis store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	if s != nil && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// positionPart keeps placement, side to move, castling and en passant.
// Move counters do not change what the engine would find.
func positionPart(fen string) (string, error) {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return "", ErrInvalidFEN
	}
	return strings.Join(fields[:4], " "), nil
}

func recordKey(fen string) ([]byte, string, error) {
	pos, err := positionPart(fen)
	if err != nil {
		return nil, "", err
	}
	key := make([]byte, len(analysisPrefix)+8)
	copy(key, analysisPrefix)
	binary.BigEndian.PutUint64(key[len(analysisPrefix):], xxhash.Sum64String(pos))
	return key, pos, nil
}

// SaveAnalysis stores a. An existing record for the same position is only
// replaced when a was searched at least as deep. It reports whether a was
// written.
func (s *Store) SaveAnalysis(a Analysis) (bool, error) {
	key, _, err := recordKey(a.FEN)
	if err != nil {
		return false, err
	}
	if a.Searched.IsZero() {
		a.Searched = time.Now()
	}

	data, err := json.Marshal(a)
	if err != nil {
		return false, err
	}

	written := false
	err = s.db.Update(func(txn *badger.Txn) error {
		old, found, err := readRecord(txn, key)
		if err != nil {
			return err
		}
		if found && old.Depth > a.Depth {
			return nil
		}
		written = true
		return txn.Set(key, data)
	})
	return written, err
}

// LoadAnalysis returns the record for the position described by fen.
func (s *Store) LoadAnalysis(fen string) (Analysis, bool, error) {
	key, pos, err := recordKey(fen)
	if err != nil {
		return Analysis{}, false, err
	}

	var (
		a     Analysis
		found bool
	)
	err = s.db.View(func(txn *badger.Txn) error {
		a, found, err = readRecord(txn, key)
		return err
	})
	if err != nil || !found {
		return Analysis{}, false, err
	}

	// Guard against hash collisions.
	if stored, err := positionPart(a.FEN); err != nil || stored != pos {
		return Analysis{}, false, nil
	}
	return a, true, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(analysisPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func readRecord(txn *badger.Txn, key []byte) (Analysis, bool, error) {
	var a Analysis
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return a, false, nil
	}
	if err != nil {
		return a, false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &a)
	})
	if err != nil {
		return a, false, fmt.Errorf("decode analysis record: %w", err)
	}
	return a, true, nil
}
