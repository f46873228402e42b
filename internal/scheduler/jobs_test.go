package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/database"
	"github.com/aristath/folio/internal/domain"
	"github.com/aristath/folio/internal/modules/drift"
	"github.com/aristath/folio/internal/server"
)

type stubSource struct {
	snapshot *server.Snapshot
}

func (s *stubSource) Latest() *server.Snapshot { return s.snapshot }

func TestDriftMonitorJobNoSnapshot(t *testing.T) {
	job := NewDriftMonitorJob(&stubSource{}, drift.NewAnalyzer(zerolog.Nop()), zerolog.Nop())

	assert.Equal(t, "drift-monitor", job.Name())
	assert.NoError(t, job.Run(), "empty snapshot is a no-op, not an error")
}

func TestDriftMonitorJobAnalyzesSnapshot(t *testing.T) {
	source := &stubSource{snapshot: &server.Snapshot{
		Holdings: []domain.Holding{
			{AssetClass: "equity", Value: 8000},
			{AssetClass: "bond", Value: 2000},
		},
		Target:    domain.AllocationMap{"equity": 60, "bond": 40},
		UpdatedAt: time.Now(),
	}}

	job := NewDriftMonitorJob(source, drift.NewAnalyzer(zerolog.Nop()), zerolog.Nop())
	assert.NoError(t, job.Run())
}

func TestCachePurgeJob(t *testing.T) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	c := cache.New(db, zerolog.Nop())
	require.NoError(t, c.Init())
	require.NoError(t, c.Set("ns", "dead", map[string]string{"k": "v"}, -time.Minute))

	job := NewCachePurgeJob(c, zerolog.Nop())
	assert.Equal(t, "cache-purge", job.Name())
	assert.NoError(t, job.Run())

	var out map[string]string
	assert.False(t, c.Get("ns", "dead", &out))
}

func TestSchedulerRegisterAndStart(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.Register("@hourly", NewDriftMonitorJob(&stubSource{}, drift.NewAnalyzer(zerolog.Nop()), zerolog.Nop())))
	assert.Error(t, s.Register("not-a-spec", NewDriftMonitorJob(&stubSource{}, drift.NewAnalyzer(zerolog.Nop()), zerolog.Nop())))

	s.Start()
	s.Stop()
}
