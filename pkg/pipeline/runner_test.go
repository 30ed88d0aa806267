package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unijord/cdmcheck/pkg/enrich"
	"github.com/unijord/cdmcheck/pkg/quarantine"
	"github.com/unijord/cdmcheck/pkg/reader"
	"github.com/unijord/cdmcheck/pkg/record"
	"github.com/unijord/cdmcheck/pkg/schema"
	"github.com/unijord/cdmcheck/pkg/validate"
)

type sliceReader struct {
	rows []record.Record
	pos  int
}

func (s *sliceReader) Next() (reader.Row, error) {
	if s.pos >= len(s.rows) {
		return reader.Row{}, io.EOF
	}
	s.pos++
	return reader.Row{Index: s.pos, ID: strconv.Itoa(s.pos), Values: s.rows[s.pos-1]}, nil
}

func (s *sliceReader) Close() error { return nil }

type memWriter struct {
	mu   sync.Mutex
	recs []record.Record
	fail error
}

func (m *memWriter) Write(rec record.Record) error {
	if m.fail != nil {
		return m.fail
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memWriter) Close() error { return nil }

func personRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.Load([]schema.Definition{{
		Table: "person",
		Fields: []schema.FieldDef{
			{Name: "person_id", Type: "integer", Mode: "required"},
			{Name: "gender_concept_id", Type: "integer", Mode: "required"},
			{Name: "birth_datetime", Type: "timestamp", Mode: "nullable"},
		},
	}})
	require.NoError(t, err)
	return reg
}

func people(n int) []record.Record {
	rows := make([]record.Record, n)
	for i := range rows {
		rows[i] = record.Record{"person_id": strconv.Itoa(i + 1), "gender_concept_id": "8507"}
	}
	return rows
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if cfg.Validator == nil {
		cfg.Validator = validate.New(personRegistry(t), validate.Lenient)
	}
	r, err := New(cfg)
	require.NoError(t, err)
	return r
}

func TestRun_PreservesInputOrder(t *testing.T) {
	rows := people(500)
	rows[10]["person_id"] = "not-a-number"
	rows[200]["gender_concept_id"] = ""

	r := newRunner(t, Config{Workers: 8})
	w := &memWriter{}
	stats, err := r.Run(context.Background(), "person", &sliceReader{rows: rows}, w)
	require.NoError(t, err)

	assert.Equal(t, Stats{Read: 500, Valid: 498, Rejected: 2}, stats)
	require.Len(t, w.recs, 498)

	prev := int64(0)
	for _, rec := range w.recs {
		id := rec["person_id"].(int64)
		assert.Greater(t, id, prev)
		prev = id
	}
	assert.Equal(t, record.Null{Type: schema.TypeTimestamp}, w.recs[0]["birth_datetime"])
}

func TestRun_Quarantine(t *testing.T) {
	store, err := quarantine.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	defer store.Close()

	rows := people(5)
	rows[1]["person_id"] = "x"
	rows[3]["extra"] = "1"

	r := newRunner(t, Config{
		Validator:  validate.New(personRegistry(t), validate.Strict),
		Workers:    2,
		Quarantine: store,
	})
	stats, err := r.Run(context.Background(), "person", &sliceReader{rows: rows}, &memWriter{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rejected)

	reports, err := store.ListRun("person", r.RunID())
	require.NoError(t, err)
	require.Len(t, reports, 2)

	assert.Equal(t, uint64(2), reports[0].RowIndex)
	assert.Equal(t, "2", reports[0].RowID)
	assert.Equal(t, []validate.ColumnViolation{{Column: "person_id", Reason: "type mismatch: expected integer"}}, reports[0].Violations)
	assert.Equal(t, "x", reports[0].Raw["person_id"])

	assert.Equal(t, uint64(4), reports[1].RowIndex)
	assert.Equal(t, "unknown column: extra", reports[1].Violations[0].Reason)
}

func TestRun_EnrichAndFilter(t *testing.T) {
	reg := personRegistry(t)
	rules, err := enrich.ParseRules([]byte(`
tables:
  person:
    defaults:
      gender_concept_id: "0"
    filter: "row.person_id != '3'"
`))
	require.NoError(t, err)
	enricher, err := enrich.Compile(rules, reg)
	require.NoError(t, err)

	rows := people(4)
	delete(rows[0], "gender_concept_id")

	var seen []Status
	r := newRunner(t, Config{
		Validator: validate.New(reg, validate.Lenient),
		Enricher:  enricher,
		OnOutcome: func(o Outcome) { seen = append(seen, o.Status) },
	})
	w := &memWriter{}
	stats, err := r.Run(context.Background(), "person", &sliceReader{rows: rows}, w)
	require.NoError(t, err)

	assert.Equal(t, Stats{Read: 4, Valid: 3, Filtered: 1}, stats)
	assert.Equal(t, []Status{StatusOK, StatusOK, StatusFiltered, StatusOK}, seen)
	assert.Equal(t, int64(0), w.recs[0]["gender_concept_id"])
}

func TestRun_RuleFailureRejectsRow(t *testing.T) {
	reg := personRegistry(t)
	rules, err := enrich.ParseRules([]byte(`
tables:
  person:
    defaults:
      gender_concept_id: "toInt(row.gender_source_value)"
`))
	require.NoError(t, err)
	enricher, err := enrich.Compile(rules, reg)
	require.NoError(t, err)

	var rejected *validate.Result
	r := newRunner(t, Config{
		Validator: validate.New(reg, validate.Lenient),
		Enricher:  enricher,
		OnOutcome: func(o Outcome) {
			if o.Status == StatusRejected {
				rejected = o.Result
			}
		},
	})
	rows := []record.Record{{"person_id": "1", "gender_source_value": "F"}}
	stats, err := r.Run(context.Background(), "person", &sliceReader{rows: rows}, &memWriter{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rejected)

	require.NotNil(t, rejected)
	require.Len(t, rejected.Violations, 1)
	assert.Equal(t, "gender_concept_id", rejected.Violations[0].Column)
	assert.True(t, strings.HasPrefix(rejected.Violations[0].Reason, ReasonRuleFailed))
}

func TestRun_UnknownTable(t *testing.T) {
	r := newRunner(t, Config{})
	_, err := r.Run(context.Background(), "observation", &sliceReader{}, &memWriter{})
	assert.True(t, schema.IsNotFound(err))
}

func TestRun_WriteError(t *testing.T) {
	r := newRunner(t, Config{Workers: 4})
	boom := errors.New("disk full")
	_, err := r.Run(context.Background(), "person", &sliceReader{rows: people(100)}, &memWriter{fail: boom})
	assert.ErrorIs(t, err, boom)
}

// slowReader yields rows slowly and counts every Next made after Close.
type slowReader struct {
	sliceReader
	mu        sync.Mutex
	closed    bool
	lateCalls atomic.Int32
}

func (s *slowReader) Next() (reader.Row, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.lateCalls.Add(1)
	}
	time.Sleep(2 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sliceReader.Next()
}

func (s *slowReader) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func TestRun_NoReadsAfterReturn(t *testing.T) {
	r := newRunner(t, Config{Workers: 4})
	in := &slowReader{sliceReader: sliceReader{rows: people(50)}}
	_, err := r.Run(context.Background(), "person", in, &memWriter{fail: errors.New("disk full")})
	require.Error(t, err)
	require.NoError(t, in.Close())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), in.lateCalls.Load())
}

func TestRun_WriteErrorKeepsQuarantine(t *testing.T) {
	store, err := quarantine.Open(filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	defer store.Close()

	rows := people(3)
	rows[0]["person_id"] = "x"

	r := newRunner(t, Config{Workers: 1, Quarantine: store})
	boom := errors.New("disk full")
	stats, err := r.Run(context.Background(), "person", &sliceReader{rows: rows}, &memWriter{fail: boom})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, stats.Rejected)

	n, err := store.Count("person")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type failingReader struct {
	sliceReader
	failAt int
}

func (f *failingReader) Next() (reader.Row, error) {
	if f.pos == f.failAt {
		return reader.Row{}, errors.New("bad line")
	}
	return f.sliceReader.Next()
}

func TestRun_ReadError(t *testing.T) {
	r := newRunner(t, Config{Workers: 3})
	w := &memWriter{}
	stats, err := r.Run(context.Background(), "person", &failingReader{sliceReader: sliceReader{rows: people(10)}, failAt: 4}, w)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad line")
	assert.Equal(t, 4, stats.Read)
	assert.Len(t, w.recs, 4)
}

// endlessReader never runs out and cancels the run after a few rows.
type endlessReader struct {
	n      int
	cancel context.CancelFunc
}

func (e *endlessReader) Next() (reader.Row, error) {
	e.n++
	if e.n == 50 {
		e.cancel()
	}
	return reader.Row{Index: e.n, Values: record.Record{"person_id": "1", "gender_concept_id": "0"}}, nil
}

func (e *endlessReader) Close() error { return nil }

func TestRun_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := newRunner(t, Config{Workers: 2})
	_, err := r.Run(ctx, "person", &endlessReader{cancel: cancel}, &memWriter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RequiresValidator(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNoValidator)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "filtered", StatusFiltered.String())
	assert.Equal(t, "rejected", StatusRejected.String())
	assert.Equal(t, "unknown(9)", Status(9).String())
}
