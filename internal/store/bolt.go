package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/medivuehealth/flarecast/internal/apperr"
)

const (
	predictionsBucket = "predictions" // prediction JSON keyed by id
	timeIndexBucket   = "pred_time"   // "<unixnano>_<id>" -> id, for range scans
	validationsBucket = "validations" // validation records keyed by run time
	trainingBucket    = "training"    // labeled training records keyed by time
)

// BoltStore is the embedded backend: one file, suitable for single-node
// deployments and offline training runs.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (or creates) the database file under dataPath.
func OpenBolt(dataPath string) (*BoltStore, error) {
	dbPath := filepath.Join(dataPath, "flarecast.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{predictionsBucket, timeIndexBucket, validationsBucket, trainingBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func timeKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%020d_%s", ts.UnixNano(), id))
}

// Record appends a prediction. The id must be new; predictions are never
// rewritten.
func (s *BoltStore) Record(_ context.Context, p Prediction) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		if b.Get([]byte(p.ID)) != nil {
			return apperr.Conflict(fmt.Sprintf("prediction %s already recorded", p.ID))
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		if err := b.Put([]byte(p.ID), data); err != nil {
			return err
		}
		return tx.Bucket([]byte(timeIndexBucket)).Put(timeKey(p.Timestamp, p.ID), []byte(p.ID))
	})
	return storageErr(err)
}

func (s *BoltStore) Get(_ context.Context, id string) (Prediction, error) {
	var p Prediction
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(predictionsBucket)).Get([]byte(id))
		if data == nil {
			return apperr.NotFound("prediction", id)
		}
		return json.Unmarshal(data, &p)
	})
	return p, storageErr(err)
}

// AttachOutcome sets the outcome exactly once. A repeat report that agrees
// on flare_occurred is accepted and ignored, keeping the first report's
// details; a disagreeing report is a conflict the caller must resolve.
func (s *BoltStore) AttachOutcome(_ context.Context, predictionID string, o Outcome) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(predictionsBucket))
		data := b.Get([]byte(predictionID))
		if data == nil {
			return apperr.NotFound("prediction", predictionID)
		}
		var p Prediction
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshal prediction: %w", err)
		}
		if p.Outcome != nil {
			if p.Outcome.FlareOccurred == o.FlareOccurred {
				return nil
			}
			return apperr.Conflict(fmt.Sprintf("prediction %s already has a conflicting outcome", predictionID))
		}
		p.Outcome = &o
		updated, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal prediction: %w", err)
		}
		return b.Put([]byte(predictionID), updated)
	})
	return storageErr(err)
}

// List returns predictions newest-first, filtered by the query.
func (s *BoltStore) List(_ context.Context, q Query) ([]Prediction, error) {
	var out []Prediction
	err := s.db.View(func(tx *bbolt.Tx) error {
		preds := tx.Bucket([]byte(predictionsBucket))
		c := tx.Bucket([]byte(timeIndexBucket)).Cursor()

		// Walk the time index backwards for newest-first order.
		for k, id := c.Last(); k != nil; k, id = c.Prev() {
			data := preds.Get(id)
			if data == nil {
				continue
			}
			var p Prediction
			if err := json.Unmarshal(data, &p); err != nil {
				continue // skip malformed records
			}
			if !q.Since.IsZero() && p.Timestamp.Before(q.Since) {
				break // index is time-ordered; nothing older matches
			}
			if q.UserID != "" && p.UserID != q.UserID {
				continue
			}
			out = append(out, p)
			if q.Limit > 0 && len(out) == q.Limit {
				return nil
			}
		}
		return nil
	})
	return out, storageErr(err)
}

// Verified returns outcome-bearing predictions in [start, end), newest-first.
func (s *BoltStore) Verified(_ context.Context, start, end time.Time) ([]Prediction, error) {
	var out []Prediction
	err := s.db.View(func(tx *bbolt.Tx) error {
		preds := tx.Bucket([]byte(predictionsBucket))
		c := tx.Bucket([]byte(timeIndexBucket)).Cursor()

		startKey := []byte(fmt.Sprintf("%020d", start.UnixNano()))
		endKey := []byte(fmt.Sprintf("%020d", end.UnixNano()))

		for k, id := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, id = c.Next() {
			data := preds.Get(id)
			if data == nil {
				continue
			}
			var p Prediction
			if err := json.Unmarshal(data, &p); err != nil {
				continue
			}
			if p.Outcome == nil {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, storageErr(err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

func (s *BoltStore) AppendValidation(_ context.Context, v ValidationRecord) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal validation record: %w", err)
		}
		return tx.Bucket([]byte(validationsBucket)).Put(timeKey(v.RunAt, v.ID), data)
	})
	return storageErr(err)
}

func (s *BoltStore) ValidationHistory(_ context.Context, limit int) ([]ValidationRecord, error) {
	var out []ValidationRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(validationsBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec ValidationRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, storageErr(err)
}

func (s *BoltStore) AddTraining(_ context.Context, r TrainingRecord) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal training record: %w", err)
		}
		return tx.Bucket([]byte(trainingBucket)).Put(timeKey(r.Timestamp, r.ID), data)
	})
	return storageErr(err)
}

func (s *BoltStore) Training(_ context.Context, limit int) ([]TrainingRecord, error) {
	var out []TrainingRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(trainingBucket)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec TrainingRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			out = append(out, rec)
			if limit > 0 && len(out) == limit {
				return nil
			}
		}
		return nil
	})
	return out, storageErr(err)
}

// storageErr wraps backend failures as storage errors while passing through
// already-classified application errors.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Storage(err)
}
