// Copyright (c) 2026 The powd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package powstate persists the proving state shared between the prover and
// its workers: the stamp of the head new blocks must extend and the hash of
// the last block proven by the node.
package powstate

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// DBName is the name of the directory holding the database under the data
// directory.
const DBName = "powstate"

var (
	currentKey    = []byte("current")
	lastProvenKey = []byte("lastproven")
)

// Store is a LevelDB backed proving state.
type Store struct {
	db *leveldb.DB
}

// Open opens or creates the store under dataDir.
func Open(dataDir string) (*Store, error) {
	db, err := leveldb.OpenFile(filepath.Join(dataDir, DBName), nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open pow state: %w", err)
	}
	return &Store{db: db}, nil
}

// New returns a store on top of the provided storage.  It is mostly useful
// with an in-memory storage.
func New(stor storage.Storage) (*Store, error) {
	db, err := leveldb.Open(stor, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to open pow state: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) get(key []byte) (string, bool, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(v), true, nil
}

// SetCurrent records the "number-hash" stamp of the head new blocks must
// extend.
func (s *Store) SetCurrent(stamp string) error {
	return s.db.Put(currentKey, []byte(stamp), nil)
}

// Current returns the recorded head stamp.  The boolean is false when nothing
// was ever recorded, and the stamp is empty after Stop.
func (s *Store) Current() (string, bool, error) {
	return s.get(currentKey)
}

// Stop records an empty stamp so that running workers stop by themselves.
func (s *Store) Stop() error {
	return s.SetCurrent("")
}

// SetLastProven records the hash of the last block proven by the node.
func (s *Store) SetLastProven(hash string) error {
	return s.db.Put(lastProvenKey, []byte(hash), nil)
}

// LastProven returns the hash of the last block proven by the node, if any.
func (s *Store) LastProven() (string, bool, error) {
	return s.get(lastProvenKey)
}
