// Package leveldb implements the address.Directory interface on top of LevelDB
package leveldb

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	log "github.com/sirupsen/logrus"
)

var ErrCorrupted = fmt.Errorf("corrupted")

// LevelDB wraps a database handle. goleveldb serializes writes internally and lets reads
// proceed concurrently, so no extra lock is held here.
type LevelDB struct {
	db *leveldb.DB
}

// openMemory opens a LevelDB instance backed by process memory. Nothing is written to disk and
// the contents are gone once the process exits.
func openMemory() (*leveldb.DB, error) {
	opts := &opt.Options{
		Compression: opt.NoCompression,
	}

	db, err := leveldb.Open(storage.NewMemStorage(), opts)
	if err != nil {
		return nil, err
	}

	log.Debug("Opened in-memory LevelDB")

	return db, nil
}

func (l *LevelDB) Close() error {
	return l.db.Close()
}
