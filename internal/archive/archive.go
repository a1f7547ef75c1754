// Package archive persists run and task results to a SQLite database so
// past runs can be listed and inspected after the process exits.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/maxkimambo/xenopipe/internal/dag"
	"github.com/maxkimambo/xenopipe/internal/logger"
)

// ErrRunNotFound is returned when a run id is not in the archive
var ErrRunNotFound = errors.New("run not found")

type Archive struct {
	db *gorm.DB
}

var _ dag.Recorder = (*Archive)(nil)

// Open opens (creating if needed) the archive at path
func Open(path string) (*Archive, error) {
	if !strings.Contains(path, ":memory:") {
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open run archive %s: %w", path, err)
	}

	if err := db.AutoMigrate(&RunRecord{}, &TaskRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate run archive: %w", err)
	}

	logger.Op.WithFields(map[string]interface{}{"path": path}).Debug("run archive opened")
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (a *Archive) BeginRun(ctx context.Context, info dag.RunInfo) error {
	run := RunRecord{
		RunID:     info.RunID,
		Workflow:  info.Workflow,
		Backend:   info.Backend,
		RunDir:    info.RunDir,
		Status:    RunRunning,
		TaskCount: info.Tasks,
		StartTime: info.StartTime.UTC(),
	}
	if err := a.db.WithContext(ctx).Create(&run).Error; err != nil {
		return fmt.Errorf("error creating run record: %w", err)
	}
	return nil
}

// RecordTask stores the final result of a task. Recording the same task
// again replaces the earlier row.
func (a *Archive) RecordTask(ctx context.Context, runID string, result *dag.RunResult) error {
	alloc, err := json.Marshal(result.Allocation)
	if err != nil {
		return fmt.Errorf("error encoding allocation: %w", err)
	}
	outputs, err := json.Marshal(result.Outputs)
	if err != nil {
		return fmt.Errorf("error encoding outputs: %w", err)
	}

	rec := TaskRecord{
		RunID:      runID,
		Task:       result.Task,
		State:      result.State.String(),
		Attempts:   result.Attempts,
		ExitCode:   result.ExitCode,
		ErrorKind:  string(result.ErrorKind),
		Error:      nullString(result.ErrorMessage),
		Allocation: datatypes.JSON(alloc),
		Outputs:    datatypes.JSON(outputs),
		StdoutPath: result.StdoutPath,
		StderrPath: result.StderrPath,
		Collected:  result.Collected,
		StartTime:  nullTime(result.StartTime),
		EndTime:    nullTime(result.EndTime),
		DurationMs: result.Duration.Milliseconds(),
	}

	err = a.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("error saving task record %s: %w", result.Task, err)
	}
	return nil
}

func (a *Archive) FinishRun(ctx context.Context, result *dag.ExecutionResult) error {
	finals, err := json.Marshal(result.FinalOutputs)
	if err != nil {
		return fmt.Errorf("error encoding final outputs: %w", err)
	}

	status := RunSucceeded
	if !result.Success {
		status = RunFailed
	}
	updates := map[string]any{
		"status":        status,
		"succeeded":     len(result.TasksIn(dag.StateSucceeded)),
		"failed":        len(result.TasksIn(dag.StateFailedFinal)),
		"cancelled":     len(result.TasksIn(dag.StateCancelled)),
		"final_outputs": datatypes.JSON(finals),
		"end_time":      time.Now().UTC(),
	}
	if result.Error != nil {
		updates["error"] = result.Error.Error()
	}

	tx := a.db.WithContext(ctx).Model(&RunRecord{RunID: result.RunID}).Updates(updates)
	if tx.Error != nil {
		return fmt.Errorf("error updating run record: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, result.RunID)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means all.
func (a *Archive) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	q := a.db.WithContext(ctx).Order("start_time desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing runs: %w", err)
	}
	return runs, nil
}

// GetRun loads a run together with its task records
func (a *Archive) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var run RunRecord
	err := a.db.WithContext(ctx).
		Preload("Tasks", func(db *gorm.DB) *gorm.DB {
			return db.Order("start_time asc").Order("task asc")
		}).
		First(&run, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("error loading run %s: %w", runID, err)
	}
	return &run, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
