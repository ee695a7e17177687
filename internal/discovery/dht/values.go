package dht

import (
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// ============================================================================
//                          键值存储
// ============================================================================

// ValueStore 覆盖网键值存储
//
// 实现必须并发安全。
type ValueStore interface {
	// Put 存储键值，已存在时覆盖
	Put(key string, value []byte) error

	// Get 读取键值，第二个返回值表示键是否存在
	Get(key string) ([]byte, bool, error)

	// Close 释放底层资源
	Close() error
}

// ============================================================================
//                          内存存储
// ============================================================================

// memoryStore 进程内键值存储
type memoryStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() ValueStore {
	return &memoryStore{values: make(map[string][]byte)}
}

func (s *memoryStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	s.values[key] = buf
	return nil
}

func (s *memoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *memoryStore) Close() error {
	return nil
}

// ============================================================================
//                          持久化存储
// ============================================================================

// badgerStore 基于 Badger 的持久化键值存储
type badgerStore struct {
	db *badger.DB
}

// NewBadgerStore 在指定目录打开持久化存储
func NewBadgerStore(dir string) (ValueStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &badgerStore{db: db}, nil
}

func (s *badgerStore) Put(key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *badgerStore) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
