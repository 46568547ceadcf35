package leveldb

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"opinionnet/datamodel/address"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixUser = "USR" // Address records indexed by user ID. Followed by the raw user ID
)

var _ address.Directory = (*Directory)(nil)

type Directory struct {
	LevelDB
}

func keyFromUser(userID string) []byte {
	return append([]byte(keyPrefixUser), []byte(userID)...)
}

func NewDirectory() (*Directory, error) {
	db, err := openMemory()
	if err != nil {
		return nil, err
	}

	return &Directory{
		LevelDB: LevelDB{db: db},
	}, nil
}

func (l *Directory) Put(userID string, rec address.Record) error {
	raw, err := cbor.Marshal(&address.Entry{UserID: userID, Record: rec})
	if err != nil {
		return err
	}

	// A single Put is atomic in LevelDB
	return l.db.Put(keyFromUser(userID), raw, nil)
}

func (l *Directory) Get(userID string) (address.Record, bool, error) {
	raw, err := l.db.Get(keyFromUser(userID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return address.Record{}, false, nil
	}
	if err != nil {
		return address.Record{}, false, err
	}

	entry := &address.Entry{}
	if err := cbor.Unmarshal(raw, entry); err != nil {
		return address.Record{}, false, err
	}

	// Compare the user ID just in case
	if entry.UserID != userID {
		log.Errorf("Get: user mismatch: %s != %s", userID, entry.UserID)
		return address.Record{}, false, ErrCorrupted
	}

	return entry.Record, true, nil
}

// Enumerate iterates over a point-in-time snapshot, so concurrent writers do not affect the
// result.
func (l *Directory) Enumerate() ([]address.Entry, error) {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return nil, err
	}
	defer snap.Release()

	iter := snap.NewIterator(util.BytesPrefix([]byte(keyPrefixUser)), nil)
	defer iter.Release()

	var results []address.Entry
	for iter.Next() {
		entry := address.Entry{}
		if err := cbor.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, err
		}
		results = append(results, entry)
	}

	return results, iter.Error()
}
