package badger

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/resolvd/pkg/engine"
	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Test helpers
// ============================================================================

func newTestStore(t *testing.T, mutate ...func(*Config)) *Store {
	t.Helper()
	cfg := Config{
		InMemory:    true,
		DataSources: []string{"CUSTOMERS", "WATCHLIST"},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	s, err := Open(context.Background(), cfg, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func add(t *testing.T, s *Store, ds, id string, attrs map[string]string) engine.EntityRef {
	t.Helper()
	ref, err := s.AddRecord(context.Background(), engine.Record{DataSource: ds, RecordID: id, Attributes: attrs})
	require.NoError(t, err)
	return ref
}

func readAll(t *testing.T, it engine.Iterator) []string {
	t.Helper()
	defer it.Close()
	var lines []string
	for {
		line, err := it.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}
}

// ============================================================================
// Records and resolution
// ============================================================================

func TestAddRecord_ResolvesOnSharedFeature(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	first := add(t, s, "CUSTOMERS", "1", map[string]string{"NAME_FULL": "Ada Lovelace", "EMAIL": "ada@example.com"})
	second := add(t, s, "WATCHLIST", "W9", map[string]string{"email": " ADA@example.com "})
	third := add(t, s, "CUSTOMERS", "2", map[string]string{"PHONE": "555-0100"})

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.EntityID, second.EntityID)
	assert.True(t, third.Created)
	assert.NotEqual(t, first.EntityID, third.EntityID)

	ent, err := s.GetEntityByRecordID(context.Background(), engine.RecordKey{DataSource: "watchlist", RecordID: "W9"})
	require.NoError(t, err)
	assert.Equal(t, first.EntityID, ent.EntityID)
	assert.ElementsMatch(t, []engine.RecordKey{
		{DataSource: "CUSTOMERS", RecordID: "1"},
		{DataSource: "WATCHLIST", RecordID: "W9"},
	}, ent.Records)
}

func TestAddRecord_Validation(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  engine.Record
		kind engerrors.Kind
	}{
		{"missing record id", engine.Record{DataSource: "CUSTOMERS", Attributes: map[string]string{"EMAIL": "x"}}, engerrors.KindBadInput},
		{"missing data source", engine.Record{RecordID: "1", Attributes: map[string]string{"EMAIL": "x"}}, engerrors.KindBadInput},
		{"no attributes", engine.Record{DataSource: "CUSTOMERS", RecordID: "1"}, engerrors.KindBadInput},
		{"unknown data source", engine.Record{DataSource: "NOPE", RecordID: "1", Attributes: map[string]string{"EMAIL": "x"}}, engerrors.KindUnknownDataSource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddRecord(ctx, tt.rec)
			kind, ok := engerrors.KindOf(err)
			require.True(t, ok, "expected engine error, got %v", err)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestAddRecord_ReplaceReResolves(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a := add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "a@x.io"})
	b := add(t, s, "CUSTOMERS", "2", map[string]string{"EMAIL": "b@x.io"})
	moved := add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "b@x.io"})

	assert.Equal(t, b.EntityID, moved.EntityID)
	_, err := s.GetEntityByID(context.Background(), a.EntityID)
	assert.True(t, engerrors.IsNotFound(err), "emptied entity should be gone")

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Records)
	assert.Equal(t, int64(1), stats.Entities)
}

func TestAddRecord_LicenseLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, func(c *Config) { c.MaxRecords = 2 })
	ctx := context.Background()

	add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "1@x"})
	add(t, s, "CUSTOMERS", "2", map[string]string{"EMAIL": "2@x"})

	_, err := s.AddRecord(ctx, engine.Record{DataSource: "CUSTOMERS", RecordID: "3", Attributes: map[string]string{"EMAIL": "3@x"}})
	assert.True(t, engerrors.IsKind(err, engerrors.KindLicense))

	// Replacing an existing record does not consume the license.
	add(t, s, "CUSTOMERS", "2", map[string]string{"EMAIL": "2b@x"})

	require.NoError(t, s.DeleteRecord(ctx, engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "1"}))
	add(t, s, "CUSTOMERS", "3", map[string]string{"EMAIL": "3@x"})
}

func TestGetRecord(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "a@x.io"})

	rec, err := s.GetRecord(context.Background(), engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", rec.Attributes["EMAIL"])

	_, err = s.GetRecord(context.Background(), engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "404"})
	assert.True(t, engerrors.IsNotFound(err))
}

func TestDeleteRecord(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	ref := add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "a@x.io"})
	add(t, s, "CUSTOMERS", "2", map[string]string{"EMAIL": "a@x.io", "PHONE": "1"})

	key := engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "1"}
	require.NoError(t, s.DeleteRecord(ctx, key))
	assert.True(t, engerrors.IsNotFound(s.DeleteRecord(ctx, key)))

	ent, err := s.GetEntityByID(ctx, ref.EntityID)
	require.NoError(t, err)
	assert.Equal(t, []engine.RecordKey{{DataSource: "CUSTOMERS", RecordID: "2"}}, ent.Records)

	// The shared email is still held by record 2.
	found, err := s.SearchByAttributes(ctx, map[string]string{"EMAIL": "a@x.io"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ref.EntityID, found[0].EntityID)
}

func TestSearchByAttributes(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a := add(t, s, "CUSTOMERS", "1", map[string]string{"PHONE": "+1 (555) 0100"})
	b := add(t, s, "CUSTOMERS", "2", map[string]string{"EMAIL": "b@x.io"})

	found, err := s.SearchByAttributes(ctx, map[string]string{"PHONE": "15550100", "EMAIL": "B@X.IO"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, a.EntityID, found[0].EntityID)
	assert.Equal(t, b.EntityID, found[1].EntityID)

	none, err := s.SearchByAttributes(ctx, map[string]string{"EMAIL": "nobody@x.io"})
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.SearchByAttributes(ctx, map[string]string{"NAME_FULL": "x"})
	assert.True(t, engerrors.IsBadInput(err))
}

func TestWhyRecords(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "a@x.io", "NAME_FULL": "ada  lovelace"})
	add(t, s, "WATCHLIST", "9", map[string]string{"EMAIL": "A@x.io", "NAME_FULL": "Ada Lovelace", "DOB": "1815"})

	why, err := s.WhyRecords(context.Background(),
		engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "1"},
		engine.RecordKey{DataSource: "WATCHLIST", RecordID: "9"})
	require.NoError(t, err)
	assert.True(t, why.SameEntity)
	assert.Equal(t, map[string]string{"EMAIL": "a@x.io", "NAME_FULL": "ADA LOVELACE"}, why.SharedFeatures)
}

// ============================================================================
// Data sources
// ============================================================================

func TestDataSources(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	cfg, err := s.ListDataSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CUSTOMERS", "WATCHLIST"}, cfg.DataSources)

	again, err := s.RegisterDataSource(ctx, "customers")
	require.NoError(t, err)
	assert.Equal(t, cfg.Version, again.Version, "re-registering must not bump the version")

	_, err = s.RegisterDataSource(ctx, "bad code!")
	assert.True(t, engerrors.IsBadInput(err))

	_, err = s.ReplaceConfig(ctx, cfg.Version+7, []string{"CUSTOMERS"})
	assert.True(t, engerrors.IsKind(err, engerrors.KindReplaceConflict))

	add(t, s, "WATCHLIST", "1", map[string]string{"EMAIL": "x@y"})
	_, err = s.ReplaceConfig(ctx, cfg.Version, []string{"CUSTOMERS"})
	assert.True(t, engerrors.IsKind(err, engerrors.KindConfiguration))

	next, err := s.ReplaceConfig(ctx, cfg.Version, []string{"WATCHLIST", "VENDORS"})
	require.NoError(t, err)
	assert.Equal(t, cfg.Version+1, next.Version)
	assert.Equal(t, []string{"VENDORS", "WATCHLIST"}, next.DataSources)
}

// ============================================================================
// Exports
// ============================================================================

func TestExportCSV(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a := add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "a@x.io", "NAME_FULL": "Ada, Countess"})
	add(t, s, "WATCHLIST", "2", map[string]string{"EMAIL": "a@x.io"})

	it, err := s.ExportCSV(context.Background(), []string{"resolved_entity_id", "RECORD_ID", "NAME_FULL"})
	require.NoError(t, err)
	lines := readAll(t, it)

	id := itoa(a.EntityID)
	assert.Equal(t, []string{
		"RESOLVED_ENTITY_ID,RECORD_ID,NAME_FULL",
		id + `,1,"Ada, Countess"`,
		id + ",2,",
	}, lines)
}

func TestExportCSV_DefaultColumnsOnEmptyRepository(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	it, err := s.ExportCSV(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"RESOLVED_ENTITY_ID,DATA_SOURCE,RECORD_ID"}, readAll(t, it))
}

func TestExportJSON(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "a@x.io"})
	add(t, s, "CUSTOMERS", "2", map[string]string{"EMAIL": "b@x.io"})

	it, err := s.ExportJSON(context.Background())
	require.NoError(t, err)
	lines := readAll(t, it)
	require.Len(t, lines, 2)

	var doc jsonEntity
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &doc))
	assert.Equal(t, []engine.RecordKey{{DataSource: "CUSTOMERS", RecordID: "1"}}, doc.Records)
}

func TestExportJSON_EmptyRepositoryIsImmediateEOF(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	it, err := s.ExportJSON(context.Background())
	require.NoError(t, err)
	defer it.Close()
	_, err = it.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestExportCSV_RejectsEmptyColumn(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.ExportCSV(context.Background(), []string{"RECORD_ID", " "})
	assert.True(t, engerrors.IsBadInput(err))
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestClose_LaterCallsAreNotInitialized(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Stats(context.Background())
	assert.True(t, engerrors.IsNotInitialized(err))
	_, err = s.ExportJSON(context.Background())
	assert.True(t, engerrors.IsNotInitialized(err))
	assert.Error(t, s.Healthcheck(context.Background()))
}

func TestClose_AbortsRunningExport(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, func(c *Config) { c.ExportBuffer = 1 })
	for i := 0; i < 20; i++ {
		add(t, s, "CUSTOMERS", itoa(int64(i)), map[string]string{"EMAIL": itoa(int64(i)) + "@x"})
	}

	it, err := s.ExportJSON(context.Background())
	require.NoError(t, err)
	_, err = it.Next(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close())

	for i := 0; i < 100; i++ {
		if _, err = it.Next(context.Background()); err != nil {
			break
		}
	}
	assert.NotErrorIs(t, err, io.EOF)
	assert.True(t, engerrors.IsNotInitialized(err))
	require.NoError(t, it.Close())
}

func TestVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	v := s.Version()
	assert.Equal(t, Product, v.Product)
	assert.Equal(t, "test", v.Version)
	assert.False(t, v.StartedAt.IsZero())
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// ============================================================================
// Metrics
// ============================================================================

type recordingMetrics struct {
	mu   sync.Mutex
	ops  map[string]int
	errs int
}

func (m *recordingMetrics) ObserveTxn(op string, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op]++
	if err != nil {
		m.errs++
	}
}

func (m *recordingMetrics) RecordConflict(string) {}

func TestMetrics_ObserveTransactions(t *testing.T) {
	t.Parallel()

	m := &recordingMetrics{ops: map[string]int{}}
	s, err := Open(context.Background(), Config{InMemory: true, DataSources: []string{"CUSTOMERS"}}, "test", WithMetrics(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	add(t, s, "CUSTOMERS", "1", map[string]string{"EMAIL": "a@x.io"})
	_, err = s.GetRecord(context.Background(), engine.RecordKey{DataSource: "CUSTOMERS", RecordID: "missing"})
	require.Error(t, err)

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 1, m.ops["add record"])
	assert.Equal(t, 1, m.ops["get record"])
	assert.Equal(t, 1, m.errs)
}
