// Package quarantine keeps rejected rows in a bbolt file so a run can be
// inspected and replayed after the fact.
//
// Layout: one bucket per table. Keys are the 16-byte run id followed by the
// big-endian row index, so a run's reports sort in input order and a run can
// be scanned by prefix.
package quarantine

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/validate"
)

var (
	ErrNoTable   = errors.New("report has no table")
	ErrNoRunID   = errors.New("report has no run id")
	ErrBadRecord = errors.New("corrupt quarantine record")
)

const keySize = 16 + 8

// Report is one rejected row.
type Report struct {
	RunID       uuid.UUID                  `json:"run_id"`
	Table       string                     `json:"table"`
	RowIndex    uint64                     `json:"row_index"`
	RowID       string                     `json:"row_id,omitempty"`
	Fingerprint string                     `json:"fingerprint"`
	Violations  []validate.ColumnViolation `json:"violations"`
	Raw         map[string]any             `json:"raw"`
	At          time.Time                  `json:"at"`
}

// NewRunID returns a fresh run identifier.
func NewRunID() uuid.UUID {
	return uuid.New()
}

// Fingerprint hashes a raw row so identical rejects can be grouped across
// runs. Columns are hashed in name order as name=value pairs.
func Fingerprint(raw record.Record) string {
	names := make([]string, 0, len(raw))
	for k := range raw {
		names = append(names, k)
	}
	sort.Strings(names)

	d := xxhash.New()
	for _, k := range names {
		_, _ = d.WriteString(k)
		_, _ = d.WriteString("=")
		_, _ = d.WriteString(record.Format(raw[k]))
		_, _ = d.WriteString("\x1f")
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// NewReport builds the report for a rejected row.
func NewReport(runID uuid.UUID, res *validate.Result, rowIndex int, rowID string, raw record.Record) Report {
	values := make(map[string]any, len(raw))
	for k, v := range raw {
		values[k] = record.JSONValue(v)
	}
	return Report{
		RunID:       runID,
		Table:       res.Table,
		RowIndex:    uint64(rowIndex),
		RowID:       rowID,
		Fingerprint: Fingerprint(raw),
		Violations:  res.Violations,
		Raw:         values,
		At:          time.Now().UTC(),
	}
}

// Store is a quarantine file.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the quarantine file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open quarantine db: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the file the store was opened from.
func (s *Store) Path() string {
	return s.path
}

func reportKey(runID uuid.UUID, rowIndex uint64) []byte {
	key := make([]byte, keySize)
	copy(key, runID[:])
	binary.BigEndian.PutUint64(key[16:], rowIndex)
	return key
}

// Put stores r, replacing any report for the same run and row.
func (s *Store) Put(r Report) error {
	return s.PutBatch([]Report{r})
}

// PutBatch stores reports in a single transaction.
func (s *Store) PutBatch(reports []Report) error {
	for _, r := range reports {
		if r.Table == "" {
			return ErrNoTable
		}
		if r.RunID == uuid.Nil {
			return ErrNoRunID
		}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, r := range reports {
			b, err := tx.CreateBucketIfNotExists([]byte(r.Table))
			if err != nil {
				return err
			}
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("marshal report: %w", err)
			}
			if err := b.Put(reportKey(r.RunID, r.RowIndex), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store reports: %w", err)
	}
	return nil
}

// List returns every report of table in key order. An unknown table yields
// no reports.
func (s *Store) List(table string) ([]Report, error) {
	return s.scan(table, nil)
}

// ListRun returns the reports one run left for table, in row order.
func (s *Store) ListRun(table string, runID uuid.UUID) ([]Report, error) {
	return s.scan(table, runID[:])
}

func (s *Store) scan(table string, prefix []byte) ([]Report, error) {
	var out []Report
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var r Report
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("%w: %v", ErrBadRecord, err)
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Count returns the number of reports stored for table.
func (s *Store) Count(table string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(table)); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// Tables returns the tables that have reports, sorted.
func (s *Store) Tables() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			out = append(out, string(name))
			return nil
		})
	})
	return out, err
}

// DeleteRun drops every report one run left, across all tables, and returns
// how many were removed.
func (s *Store) DeleteRun(runID uuid.UUID) (int, error) {
	prefix := runID[:]
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.ForEach(func(_ []byte, b *bolt.Bucket) error {
			c := b.Cursor()
			for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
			}
			return nil
		})
	})
	return removed, err
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.db.Close()
}
