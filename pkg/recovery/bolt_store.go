package recovery

import (
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/go-go-golems/mento/pkg/session"
)

var recoveryBucket = []byte("recovery")

const (
	keySessionID = "session_id"
	keyModality  = "modality"
	keyVoice     = "voice_enabled"
	keyPending   = "pending_data"
)

// BoltStore persists recovery state to a bbolt file so a restart recovers
// in-flight form state. One bucket holds the whole snapshot.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open recovery store at %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(recoveryBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "could not create recovery bucket")
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

var _ Store = (*BoltStore)(nil)

func (s *BoltStore) get(key string) ([]byte, bool) {
	var out []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(recoveryBucket).Get([]byte(key))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil
}

func (s *BoltStore) put(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(recoveryBucket).Put([]byte(key), value)
	})
}

func (s *BoltStore) HasRecoverableState() bool {
	for _, k := range []string{keyModality, keyVoice, keyPending} {
		if _, ok := s.get(k); ok {
			return true
		}
	}
	return false
}

func (s *BoltStore) GetModalityPreference() (session.Modality, bool) {
	v, ok := s.get(keyModality)
	if !ok {
		return "", false
	}
	return session.Modality(v), true
}

func (s *BoltStore) SetModalityPreference(m session.Modality) error {
	return s.put(keyModality, []byte(m))
}

func (s *BoltStore) GetVoiceEnabled() (bool, bool) {
	v, ok := s.get(keyVoice)
	if !ok {
		return false, false
	}
	return string(v) == "true", true
}

func (s *BoltStore) SetVoiceEnabled(enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	return s.put(keyVoice, []byte(v))
}

func (s *BoltStore) GetPendingData() (*session.PendingDataRequest, bool) {
	v, ok := s.get(keyPending)
	if !ok {
		return nil, false
	}
	var p session.PendingDataRequest
	if err := json.Unmarshal(v, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (s *BoltStore) SetPendingData(p *session.PendingDataRequest) error {
	if p == nil {
		return s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(recoveryBucket).Delete([]byte(keyPending))
		})
	}
	b, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "could not encode pending data")
	}
	return s.put(keyPending, b)
}

func (s *BoltStore) UpdatePendingDataFields(fields map[string]any) error {
	p, ok := s.GetPendingData()
	if !ok {
		p = &session.PendingDataRequest{}
	}
	p.Merge(fields)
	return s.SetPendingData(p)
}

func (s *BoltStore) SetSessionID(id string) error {
	return s.put(keySessionID, []byte(id))
}

func (s *BoltStore) GetSessionID() (string, bool) {
	v, ok := s.get(keySessionID)
	return string(v), ok
}

func (s *BoltStore) ClearAll() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(recoveryBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(recoveryBucket)
		return err
	})
}
