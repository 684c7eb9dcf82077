// Package cache keeps resolved listing records in memcache so a listing that
// shows up under several brands or pages is fetched once per run.
package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// Store is the byte-level cache the resolver talks to.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte, expiration time.Duration) error
	Delete(key string) error
}

// MemcacheStore implements Store using memcache
type MemcacheStore struct {
	client *memcache.Client
}

func NewMemcacheStore(servers ...string) *MemcacheStore {
	client := memcache.New(servers...)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheStore{client: client}
}

// Ping reports whether at least one server answers.
func (m *MemcacheStore) Ping() error {
	return m.client.Ping()
}

func (m *MemcacheStore) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

func (m *MemcacheStore) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(expiration.Seconds()),
	})
}

func (m *MemcacheStore) Delete(key string) error {
	return m.client.Delete(key)
}
