// Package memory implements address.Directory on a sharded in-process map.
package memory

import (
	"hash/fnv"
	"sort"
	"sync"

	"opinionnet/datamodel/address"
)

const defaultShards = 32

var _ address.Directory = (*Directory)(nil)

type shard struct {
	mu      sync.RWMutex
	records map[string]address.Record
}

// Directory spreads users over independently locked shards so that writers to unrelated keys
// never contend on the same lock.
type Directory struct {
	shards []*shard
}

func New() *Directory {
	return NewWithShards(defaultShards)
}

func NewWithShards(n int) *Directory {
	if n < 1 {
		n = 1
	}
	d := &Directory{shards: make([]*shard, n)}
	for i := range d.shards {
		d.shards[i] = &shard{records: make(map[string]address.Record)}
	}
	return d
}

func (d *Directory) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return d.shards[h.Sum32()%uint32(len(d.shards))]
}

func (d *Directory) Put(userID string, rec address.Record) error {
	s := d.shardFor(userID)
	s.mu.Lock()
	s.records[userID] = rec
	s.mu.Unlock()
	return nil
}

func (d *Directory) Get(userID string) (address.Record, bool, error) {
	s := d.shardFor(userID)
	s.mu.RLock()
	rec, ok := s.records[userID]
	s.mu.RUnlock()
	return rec, ok, nil
}

// Enumerate locks one shard at a time, so the result is consistent per shard only.
func (d *Directory) Enumerate() ([]address.Entry, error) {
	var entries []address.Entry
	for _, s := range d.shards {
		s.mu.RLock()
		for id, rec := range s.records {
			entries = append(entries, address.Entry{UserID: id, Record: rec})
		}
		s.mu.RUnlock()
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries, nil
}

func (d *Directory) Close() error {
	return nil
}
