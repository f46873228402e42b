package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/folio/internal/cache"
	"github.com/aristath/folio/internal/modules/drift"
	"github.com/aristath/folio/internal/server"
)

// SnapshotSource supplies the most recent portfolio submitted for
// analysis.
type SnapshotSource interface {
	Latest() *server.Snapshot
}

// DriftMonitorJob re-analyzes the last submitted portfolio and raises a
// log warning when its allocation has drifted into medium or high urgency.
type DriftMonitorJob struct {
	source   SnapshotSource
	analyzer *drift.Analyzer
	log      zerolog.Logger
}

func NewDriftMonitorJob(source SnapshotSource, analyzer *drift.Analyzer, log zerolog.Logger) *DriftMonitorJob {
	return &DriftMonitorJob{
		source:   source,
		analyzer: analyzer,
		log:      log.With().Str("component", "drift_monitor").Logger(),
	}
}

func (j *DriftMonitorJob) Name() string { return "drift-monitor" }

func (j *DriftMonitorJob) Run() error {
	snapshot := j.source.Latest()
	if snapshot == nil {
		j.log.Debug().Msg("No portfolio snapshot yet, skipping drift check")
		return nil
	}

	report := j.analyzer.Analyze(snapshot.Holdings, snapshot.Target)

	event := j.log.Info()
	if report.Urgency == drift.UrgencyHigh || report.Urgency == drift.UrgencyMedium {
		event = j.log.Warn()
	}
	event.
		Float64("score", report.Score).
		Float64("max_drift", report.MaxDrift).
		Str("max_drift_class", report.MaxDriftClass).
		Str("urgency", string(report.Urgency)).
		Time("snapshot_at", snapshot.UpdatedAt).
		Msg("Scheduled drift check")

	return nil
}

// CachePurgeJob evicts expired calculation cache entries.
type CachePurgeJob struct {
	cache *cache.Cache
	log   zerolog.Logger
}

func NewCachePurgeJob(c *cache.Cache, log zerolog.Logger) *CachePurgeJob {
	return &CachePurgeJob{
		cache: c,
		log:   log.With().Str("component", "cache_purge").Logger(),
	}
}

func (j *CachePurgeJob) Name() string { return "cache-purge" }

func (j *CachePurgeJob) Run() error {
	purged, err := j.cache.PurgeExpired()
	if err != nil {
		return err
	}
	if purged > 0 {
		j.log.Info().Int64("purged", purged).Msg("Purged expired cache entries")
	}
	return nil
}
