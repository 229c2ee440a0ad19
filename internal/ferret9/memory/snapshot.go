package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("conversations")

// SaveSnapshot writes convs to the bbolt file at path, replacing whatever
// was saved before.
func SaveSnapshot(path string, convs []Conversation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot: create directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	return db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(snapshotBucket) != nil {
			if err := tx.DeleteBucket(snapshotBucket); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(snapshotBucket)
		if err != nil {
			return err
		}
		for _, c := range convs {
			enc, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("snapshot: encode %s: %w", c.ID, err)
			}
			if err := b.Put([]byte(c.ID), enc); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot reads the conversations saved at path. A missing file yields
// no conversations. Undecodable entries are skipped and counted.
func LoadSnapshot(path string) (convs []Conversation, skipped int, err error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, 0, nil
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second, ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(snapshotBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var c Conversation
			if json.Unmarshal(v, &c) != nil {
				skipped++
				return nil
			}
			convs = append(convs, c)
			return nil
		})
	})
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: read %s: %w", path, err)
	}
	return convs, skipped, nil
}
