package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.etcd.io/bbolt"

	"github.com/flarexio/codeindex/manifest"
)

var bucketFiles = []byte("files")

func NewManifest(path string) (manifest.Manifest, error) {
	if path == "" {
		return nil, errors.New("manifest path is required")
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFiles)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &boltManifest{db}, nil
}

type boltManifest struct {
	db *bbolt.DB
}

func (m *boltManifest) Put(ctx context.Context, record manifest.FileRecord) error {
	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Put([]byte(record.FilePath), data)
	})
}

func (m *boltManifest) Delete(ctx context.Context, filePath string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).Delete([]byte(filePath))
	})
}

// List relies on bbolt keeping keys in byte order.
func (m *boltManifest) List(ctx context.Context) ([]manifest.FileRecord, error) {
	records := make([]manifest.FileRecord, 0)
	err := m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var record manifest.FileRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}

			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func (m *boltManifest) Close() error {
	return m.db.Close()
}
