// Package pgstore is a GORM/Postgres-backed engine.Store, the durable
// counterpart to internal/store's in-memory reference implementation.
// Adapted from the teacher's internal/repository/*.go: single-statement
// WHERE-guarded UPDATEs stand in for the teacher's explicit
// FindByID/Update pairs wherever an operation must be atomic (claiming
// or releasing a trigger's lease), exactly the CAS idiom GORM's
// Updates(...).RowsAffected already gives a Postgres row update.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/minisource/jobkeeper/internal/engine"
	"github.com/minisource/jobkeeper/internal/jobkeepererr"
	"github.com/minisource/jobkeeper/internal/models"
)

// Store is a durable engine.Store backed by a *gorm.DB.
type Store struct {
	db *gorm.DB
}

// New wraps db as an engine.Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Init runs auto-migration for the jobkeeper row types.
func (s *Store) Init(ctx context.Context) error {
	err := s.db.WithContext(ctx).AutoMigrate(
		&models.JobRow{},
		&models.TriggerRow{},
		&models.RunRow{},
		&models.JobRunStats{},
	)
	if err != nil {
		return fmt.Errorf("pgstore: automigrate: %w", err)
	}
	return nil
}

func (s *Store) UpsertJob(ctx context.Context, job *engine.Job) error {
	row := jobToRow(job)
	err := s.db.WithContext(ctx).Save(row).Error
	if err != nil {
		return fmt.Errorf("pgstore: upsert job %q: %w", job.Name, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, name string) (*engine.Job, error) {
	var row models.JobRow
	if err := s.db.WithContext(ctx).First(&row, "name = ?", name).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, jobkeepererr.NotFoundf("job %q not found", name)
		}
		return nil, fmt.Errorf("pgstore: get job %q: %w", name, err)
	}
	return rowToJob(&row), nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*engine.Job, error) {
	var rows []models.JobRow
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore: list jobs: %w", err)
	}
	out := make([]*engine.Job, len(rows))
	for i := range rows {
		out[i] = rowToJob(&rows[i])
	}
	return out, nil
}

func (s *Store) SetJobPaused(ctx context.Context, name string, paused bool) error {
	res := s.db.WithContext(ctx).Model(&models.JobRow{}).Where("name = ?", name).Update("paused", paused)
	if res.Error != nil {
		return fmt.Errorf("pgstore: set job paused %q: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		return jobkeepererr.NotFoundf("job %q not found", name)
	}
	return nil
}

func (s *Store) RemoveJob(ctx context.Context, name string) error {
	if err := s.db.WithContext(ctx).Delete(&models.JobRow{}, "name = ?", name).Error; err != nil {
		return fmt.Errorf("pgstore: remove job %q: %w", name, err)
	}
	return nil
}

func (s *Store) UpsertTrigger(ctx context.Context, trig *engine.Trigger) error {
	row, err := triggerToRow(trig)
	if err != nil {
		return fmt.Errorf("pgstore: encode trigger %q: %w", trig.ID, err)
	}
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return fmt.Errorf("pgstore: upsert trigger %q: %w", trig.ID, err)
	}
	return nil
}

func (s *Store) GetTrigger(ctx context.Context, id string) (*engine.Trigger, error) {
	var row models.TriggerRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, jobkeepererr.NotFoundf("trigger %q not found", id)
		}
		return nil, fmt.Errorf("pgstore: get trigger %q: %w", id, err)
	}
	return rowToTrigger(&row)
}

func (s *Store) ListTriggers(ctx context.Context) ([]*engine.Trigger, error) {
	var rows []models.TriggerRow
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore: list triggers: %w", err)
	}
	out := make([]*engine.Trigger, 0, len(rows))
	for i := range rows {
		t, err := rowToTrigger(&rows[i])
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Delete(&models.TriggerRow{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("pgstore: delete trigger %q: %w", id, err)
	}
	return nil
}

// ListDueTriggers matches the same predicate the in-memory store
// applies: not paused, has a next run at-or-before now, and either
// unleased or the lease has expired.
func (s *Store) ListDueTriggers(ctx context.Context, now time.Time, limit int) ([]*engine.Trigger, error) {
	var rows []models.TriggerRow
	q := s.db.WithContext(ctx).
		Where("paused = ?", false).
		Where("next_run_at IS NOT NULL AND next_run_at <= ?", now).
		Where("lease_owner = '' OR leased_until < ?", now).
		Order("priority ASC, next_run_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("pgstore: list due triggers: %w", err)
	}
	out := make([]*engine.Trigger, 0, len(rows))
	for i := range rows {
		t, err := rowToTrigger(&rows[i])
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// ClaimTrigger is a single WHERE-guarded UPDATE: Postgres's row lock on
// the matched row makes the read-check-write atomic without an explicit
// transaction.
func (s *Store) ClaimTrigger(ctx context.Context, id, ownerID string, leaseDuration time.Duration) (bool, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&models.TriggerRow{}).
		Where("id = ? AND paused = ? AND (lease_owner = '' OR lease_owner = ? OR leased_until < ?)", id, false, ownerID, now).
		Updates(map[string]interface{}{
			"lease_owner":  ownerID,
			"leased_until": now.Add(leaseDuration),
			"revision":     gorm.Expr("revision + 1"),
		})
	if res.Error != nil {
		return false, fmt.Errorf("pgstore: claim trigger %q: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) ReleaseTrigger(ctx context.Context, id, ownerID string) error {
	res := s.db.WithContext(ctx).Model(&models.TriggerRow{}).
		Where("id = ? AND lease_owner = ?", id, ownerID).
		Updates(map[string]interface{}{"lease_owner": "", "leased_until": time.Time{}})
	if res.Error != nil {
		return fmt.Errorf("pgstore: release trigger %q: %w", id, res.Error)
	}
	return nil
}

func (s *Store) RecordRunStart(ctx context.Context, run *engine.Run) error {
	row, err := runToRow(run)
	if err != nil {
		return fmt.Errorf("pgstore: encode run %q: %w", run.ID, err)
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("pgstore: record run start %q: %w", run.ID, err)
	}
	return nil
}

// RecordRunEnd finalizes a run and folds it into that job's daily
// history rollup (spec.md's run-history aggregation, adapted from the
// teacher's JobHistory).
func (s *Store) RecordRunEnd(ctx context.Context, runID string, result engine.RunEndResult) error {
	resultJSON, err := json.Marshal(result.Result)
	if err != nil {
		return fmt.Errorf("pgstore: encode run result %q: %w", runID, err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.RunRow
		if err := tx.First(&row, "id = ?", runID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil
			}
			return fmt.Errorf("pgstore: record run end %q: %w", runID, err)
		}

		now := time.Now().UTC()
		row.Status = string(result.Status)
		row.Result = resultJSON
		row.Err = result.Err
		row.EndedAt = now
		if err := tx.Save(&row).Error; err != nil {
			return fmt.Errorf("pgstore: record run end %q: %w", runID, err)
		}

		return upsertDailyStats(tx, row)
	})
}

func upsertDailyStats(tx *gorm.DB, row models.RunRow) error {
	date := row.StartedAt.Truncate(24 * time.Hour)
	durationMs := row.EndedAt.Sub(row.StartedAt).Milliseconds()
	if durationMs < 0 {
		durationMs = 0
	}

	var stats models.JobRunStats
	err := tx.Where("job = ? AND date = ?", row.Job, date).First(&stats).Error
	if err == gorm.ErrRecordNotFound {
		stats = models.JobRunStats{Job: row.Job, Date: date, MinDurationMs: durationMs, MaxDurationMs: durationMs}
	} else if err != nil {
		return fmt.Errorf("pgstore: load daily stats: %w", err)
	}

	stats.TotalRuns++
	stats.TotalDurationMs += durationMs
	if durationMs < stats.MinDurationMs || stats.MinDurationMs == 0 {
		stats.MinDurationMs = durationMs
	}
	if durationMs > stats.MaxDurationMs {
		stats.MaxDurationMs = durationMs
	}
	if row.Status == string(engine.RunCompleted) {
		stats.SuccessCount++
	} else if row.Status == string(engine.RunFailed) || row.Status == string(engine.RunStalled) {
		stats.FailureCount++
	}

	return tx.Save(&stats).Error
}

func (s *Store) TouchRun(ctx context.Context, runID string, progress *float64) error {
	updates := map[string]interface{}{"heartbeat_at": time.Now().UTC()}
	if progress != nil {
		updates["progress"] = *progress
	}
	if err := s.db.WithContext(ctx).Model(&models.RunRow{}).Where("id = ?", runID).Updates(updates).Error; err != nil {
		return fmt.Errorf("pgstore: touch run %q: %w", runID, err)
	}
	return nil
}

func (s *Store) FindStalledRuns(ctx context.Context, heartbeatTimeout time.Duration, now time.Time) ([]*engine.Run, error) {
	var rows []models.RunRow
	err := s.db.WithContext(ctx).
		Where("status = ?", string(engine.RunRunning)).
		Where("heartbeat_at < ?", now.Add(-heartbeatTimeout)).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgstore: find stalled runs: %w", err)
	}
	out := make([]*engine.Run, len(rows))
	for i := range rows {
		out[i] = rowToRun(&rows[i])
	}
	return out, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*engine.Run, error) {
	var row models.RunRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", runID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, jobkeepererr.NotFoundf("run %q not found", runID)
		}
		return nil, fmt.Errorf("pgstore: get run %q: %w", runID, err)
	}
	return rowToRun(&row), nil
}

// HistoryPoint is one daily rollup row for a job, read back by
// internal/httpapi's history endpoint.
type HistoryPoint struct {
	Date            time.Time
	TotalRuns       int64
	SuccessCount    int64
	FailureCount    int64
	TotalDurationMs int64
	MinDurationMs   int64
	MaxDurationMs   int64
}

// JobHistory returns the most recent daily rollups for job, newest first.
func (s *Store) JobHistory(ctx context.Context, job string, limit int) ([]HistoryPoint, error) {
	if limit <= 0 {
		limit = 30
	}
	var rows []models.JobRunStats
	err := s.db.WithContext(ctx).
		Where("job = ?", job).
		Order("date DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgstore: job history %q: %w", job, err)
	}
	out := make([]HistoryPoint, len(rows))
	for i, r := range rows {
		out[i] = HistoryPoint{
			Date:            r.Date,
			TotalRuns:       r.TotalRuns,
			SuccessCount:    r.SuccessCount,
			FailureCount:    r.FailureCount,
			TotalDurationMs: r.TotalDurationMs,
			MinDurationMs:   r.MinDurationMs,
			MaxDurationMs:   r.MaxDurationMs,
		}
	}
	return out, nil
}

var _ engine.Store = (*Store)(nil)
