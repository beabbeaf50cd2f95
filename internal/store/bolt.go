package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketTraces      = []byte("traces")
	bucketDiscoveries = []byte("discoveries")
	bucketMeta        = []byte("meta")
	keyTopology       = []byte("topology")
)

// DefaultMaxTraces bounds the trace bucket when no limit is configured.
const DefaultMaxTraces = 10000

// maxDiscoveries bounds the discovery history.
const maxDiscoveries = 1000

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db        *bolt.DB
	maxTraces int
}

// NewBoltStore opens or creates a BoltDB database. maxTraces <= 0 selects
// DefaultMaxTraces; older traces are dropped beyond it.
func NewBoltStore(path string, maxTraces int) (*BoltStore, error) {
	if maxTraces <= 0 {
		maxTraces = DefaultMaxTraces
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketTraces, bucketDiscoveries, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db, maxTraces: maxTraces}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// appendSeq stores v under the bucket's next sequence number and drops the
// oldest entries beyond max. setID receives the assigned id before encoding.
func appendSeq(tx *bolt.Tx, name []byte, max int, setID func(uint64), v any) error {
	b := tx.Bucket(name)
	if b == nil {
		return fmt.Errorf("bucket %q not found", name)
	}
	id, err := b.NextSequence()
	if err != nil {
		return err
	}
	setID(id)
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := b.Put(itob(id), data); err != nil {
		return err
	}

	if id <= uint64(max) {
		return nil
	}
	// Ids are consecutive, so everything at or below id-max is surplus.
	cut := id - uint64(max)
	c := b.Cursor()
	for k, _ := c.First(); k != nil && binary.BigEndian.Uint64(k) <= cut; k, _ = c.First() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) AppendTrace(t *Trace) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return appendSeq(tx, bucketTraces, s.maxTraces, func(id uint64) { t.ID = id }, t)
	})
}

func (s *BoltStore) ListTraces(q TraceQuery) ([]*Trace, error) {
	var traces []*Trace
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTraces)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var t Trace
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if !q.match(&t) {
				continue
			}
			traces = append(traces, &t)
			if q.Limit > 0 && len(traces) >= q.Limit {
				break
			}
		}
		return nil
	})
	return traces, err
}

func (s *BoltStore) ClearTraces() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketTraces); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketTraces)
		return err
	})
}

// AppendDiscovery records a discovery run; a successful one also becomes
// the last known topology.
func (s *BoltStore) AppendDiscovery(d *Discovery) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := appendSeq(tx, bucketDiscoveries, maxDiscoveries, func(id uint64) { d.ID = id }, d); err != nil {
			return err
		}
		if d.Error != "" {
			return nil
		}
		data, err := json.Marshal(d)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keyTopology, data)
	})
}

func (s *BoltStore) ListDiscoveries(limit int) ([]*Discovery, error) {
	var out []*Discovery
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDiscoveries)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var d Discovery
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			out = append(out, &d)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *BoltStore) LastTopology() (*Discovery, error) {
	var d Discovery
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keyTopology)
		if data == nil {
			return fmt.Errorf("topology: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &d)
	})
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
