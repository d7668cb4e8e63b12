package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"denticheck-server/internal/domain/eventbus"
	"denticheck-server/internal/platform/config"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/storage"
)

func makeRecord(i int) Record {
	return Record{
		ID:         fmt.Sprintf("rec-%02d", i),
		RequestID:  fmt.Sprintf("req-%02d", i),
		Operation:  eventbus.OperationDetect,
		Source:     "upload",
		Status:     eventbus.StatusCompleted,
		Labels:     map[string]int{"caries": i},
		DurationMs: int64(i * 10),
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

// exerciseStore checks ordering, limit and capacity for a store built with
// capacity 3.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := s.List(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Append(ctx, makeRecord(i)))
	}

	all, err := s.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "req-05", all[0].RequestID)
	assert.Equal(t, "req-04", all[1].RequestID)
	assert.Equal(t, "req-03", all[2].RequestID)
	assert.Equal(t, map[string]int{"caries": 5}, all[0].Labels)
	assert.EqualValues(t, 50, all[0].DurationMs)
	assert.Equal(t, "upload", all[0].Source)
	assert.True(t, all[0].CreatedAt.Equal(makeRecord(5).CreatedAt))

	two, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)

	failed := makeRecord(6)
	failed.Status = eventbus.StatusFailed
	failed.ErrorKind = "upstream_timeout"
	failed.Labels = nil
	require.NoError(t, s.Append(ctx, failed))
	latest, err := s.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "upstream_timeout", latest[0].ErrorKind)
	assert.Empty(t, latest[0].Labels)

	require.NoError(t, s.Close())
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore(3))
}

func TestSQLStore(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "journal.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close(db) })
	exerciseStore(t, NewSQLStore(db, 3))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "test:journal", 3, time.Hour)
	exerciseStore(t, s)
	assert.True(t, mr.Exists("test:journal:runs"))
	assert.Equal(t, time.Hour, mr.TTL("test:journal:runs"))
}

func TestFactory(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig().Journal

	s, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	cfg.Driver = DriverSQLite
	cfg.SQLite.DSN = filepath.Join(t.TempDir(), "j.db")
	s, err = New(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &SQLStore{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	cfg.Driver = DriverRedis
	cfg.Redis.Addr = mr.Addr()
	s, err = New(ctx, cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &RedisStore{}, s)
	require.NoError(t, s.Close())

	mr.Close()
	_, err = New(ctx, cfg, nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindStorage))

	cfg.Driver = "mongo"
	_, err = New(ctx, cfg, nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Append(context.Context, Record) error {
	return apperrors.New(apperrors.KindStorage, "test", "disk full")
}

func TestRecorderAppendsBusEvents(t *testing.T) {
	bus := eventbus.NewAsyncEventBus(1, 8, nil)
	bus.Start()
	defer bus.Stop()

	store := NewMemoryStore(10)
	detach, err := NewRecorder(store, nil).Attach(bus)
	require.NoError(t, err)

	bus.PublishAsync(eventbus.TopicRun, eventbus.RunEvent{
		RequestID: "req-1",
		Operation: eventbus.OperationDetect,
		Status:    eventbus.StatusDegraded,
		ErrorKind: "model_unavailable",
		Duration:  1500 * time.Millisecond,
	})
	bus.Flush()

	recs, err := store.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "req-1", recs[0].RequestID)
	assert.Equal(t, eventbus.StatusDegraded, recs[0].Status)
	assert.EqualValues(t, 1500, recs[0].DurationMs)
	assert.NotEmpty(t, recs[0].ID)
	assert.False(t, recs[0].CreatedAt.IsZero())

	detach()
	assert.False(t, bus.HasCallback(eventbus.TopicRun))
}

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	r := NewRecorder(&failingStore{}, nil)
	assert.NotPanics(t, func() {
		r.Handle(eventbus.RunEvent{RequestID: "x"})
	})
}
