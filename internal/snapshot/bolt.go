package snapshot

import (
	"encoding/json"
	"time"

	"go.etcd.io/bbolt"

	"invical/internal/ical"
	applog "invical/internal/log"
)

var snapshotBucketName = []byte("snapshots")

// BoltStore is the bbolt-backed Store. bbolt allows a single writing
// process per file, which makes the last-write-wins contract trivially
// hold for one sender.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the snapshot database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	return &BoltStore{db: db}, nil
}

// NewBoltStore wraps an already-open bbolt database.
func NewBoltStore(db *bbolt.DB) *BoltStore {
	return &BoltStore{db: db}
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) bucket(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	if !tx.Writable() {
		bkt := tx.Bucket(snapshotBucketName)
		if bkt == nil {
			return nil, bbolt.ErrBucketNotFound
		}
		return bkt, nil
	}
	return tx.CreateBucketIfNotExists(snapshotBucketName)
}

func (s *BoltStore) Put(uid string, snap Snapshot) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := s.bucket(tx)
		if err != nil {
			return err
		}

		data, err := json.Marshal(snap)
		if err != nil {
			return err
		}
		return bkt.Put([]byte(uid), data)
	})
}

func (s *BoltStore) Get(uid string) (Snapshot, error) {
	var snap Snapshot

	err := s.db.View(func(tx *bbolt.Tx) error {
		bkt, err := s.bucket(tx)
		if err == bbolt.ErrBucketNotFound {
			return &NotFoundError{UID: uid}
		} else if err != nil {
			return err
		}

		data := bkt.Get([]byte(uid))
		if data == nil {
			return &NotFoundError{UID: uid}
		}
		return json.Unmarshal(data, &snap)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Prune deletes every snapshot whose DTEnd is before cutoff and returns how
// many were removed. Records with an unparseable DTEnd are kept and logged;
// losing one would make its event uncancellable.
func (s *BoltStore) Prune(cutoff time.Time) (int, error) {
	removed := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(snapshotBucketName)
		if bkt == nil {
			return nil
		}

		var stale [][]byte
		err := bkt.ForEach(func(k, v []byte) error {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				applog.Warn("prune: skipping undecodable snapshot", "uid", string(k))
				return nil
			}
			end, err := ical.ParseUTC(snap.DTEnd)
			if err != nil {
				applog.Warn("prune: skipping snapshot with bad dtend", "uid", snap.UID, "dtend", snap.DTEnd)
				return nil
			}
			if end.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := bkt.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, err
	}
	return removed, nil
}
