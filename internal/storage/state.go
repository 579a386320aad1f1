package storage

import "fmt"

// HashKeyPrefix namespaces content hashes.
const HashKeyPrefix = "hash:"

// LoadHashes returns every persisted path→hash entry.
func (s *BadgerStore) LoadHashes() (map[string]string, error) {
	out := make(map[string]string)
	err := s.Scan(HashKeyPrefix, func(key string, value []byte) error {
		out[key] = string(value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: load hashes: %w", err)
	}
	return out, nil
}

// SaveHashes replaces the persisted hash table with hashes.
func (s *BadgerStore) SaveHashes(hashes map[string]string) error {
	entries := make(map[string][]byte, len(hashes))
	for path, h := range hashes {
		entries[path] = []byte(h)
	}
	return s.ReplacePrefix(HashKeyPrefix, entries)
}
