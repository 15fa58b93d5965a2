package badger

import (
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"
)

// getJSON decodes the value at key into v. It reports false when the key is
// absent.
func getJSON(txn *badgerdb.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func setJSON(txn *badgerdb.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return txn.Set(key, data)
}

// getInt64 reads an 8-byte counter; absent keys read as zero.
func getInt64(txn *badgerdb.Txn, key []byte) (int64, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	err = item.Value(func(val []byte) error {
		n = decodeInt64(val)
		return nil
	})
	return n, err
}

// getEntityID reads the entity id a feature value points to, or 0.
func getEntityID(txn *badgerdb.Txn, key []byte) (int64, error) {
	return getInt64(txn, key)
}
