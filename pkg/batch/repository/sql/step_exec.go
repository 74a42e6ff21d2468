package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"batchadmin/pkg/batch/database"
	core "batchadmin/pkg/batch/job/core"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
	"batchadmin/pkg/batch/util/serialization"
)

const stepExecutionColumns = "step_execution_id, version, step_name, job_execution_id, start_time, end_time, status, exit_status, exit_message, " +
	"commit_count, read_count, filter_count, write_count, read_skip_count, write_skip_count, process_skip_count, rollback_count, " +
	"failure_exceptions, execution_context, last_updated"

// SQLStepExecutionRepository は batch_step_execution テーブルを扱います。
type SQLStepExecutionRepository struct {
	db database.DBConnection
}

// NewSQLStepExecutionRepository は新しい SQLStepExecutionRepository を作成します。
func NewSQLStepExecutionRepository(db database.DBConnection) *SQLStepExecutionRepository {
	return &SQLStepExecutionRepository{db: db}
}

// SaveStepExecution は StepExecution を新規に保存します。
func (r *SQLStepExecutionRepository) SaveStepExecution(ctx context.Context, se *core.StepExecution) error {
	if se.JobExecutionID() == "" {
		return exception.NewBatchError("job_repository", fmt.Sprintf("StepExecution (ステップ: %s) に JobExecution が設定されていません", se.StepName), nil, false, false)
	}
	if se.ID == "" {
		se.ID = uuid.New().String()
	}
	if se.StartTime.IsZero() {
		se.StartTime = time.Now()
	}
	se.Version = 0
	se.LastUpdated = time.Now()

	ec, failures, err := marshalExecutionState(se.ExecutionContext, se.Failures)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		"INSERT INTO batch_step_execution ("+stepExecutionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		se.ID, se.Version, se.StepName, se.JobExecutionID(), dbTime(se.StartTime), nullableTime(se.EndTime),
		string(se.Status), string(se.ExitStatus), se.ExitMessage,
		se.CommitCount, se.ReadCount, se.FilterCount, se.WriteCount, se.SkipReadCount, se.SkipWriteCount, se.SkipProcessCount, se.RollbackCount,
		failures, ec, dbTime(se.LastUpdated),
	)
	if err != nil {
		return exception.NewBatchError("job_repository", fmt.Sprintf("StepExecution (ID: %s) の保存に失敗しました", se.ID), err, false, false)
	}
	logger.Debugf("StepExecution (ID: %s, ステップ: %s) を保存しました。", se.ID, se.StepName)
	return nil
}

// UpdateStepExecution は Version が一致する場合のみ更新します。
func (r *SQLStepExecutionRepository) UpdateStepExecution(ctx context.Context, se *core.StepExecution) error {
	ec, failures, err := marshalExecutionState(se.ExecutionContext, se.Failures)
	if err != nil {
		return err
	}
	now := time.Now()
	res, err := r.db.ExecContext(ctx,
		"UPDATE batch_step_execution SET version = ?, end_time = ?, status = ?, exit_status = ?, exit_message = ?, "+
			"commit_count = ?, read_count = ?, filter_count = ?, write_count = ?, read_skip_count = ?, write_skip_count = ?, "+
			"process_skip_count = ?, rollback_count = ?, failure_exceptions = ?, execution_context = ?, last_updated = ? "+
			"WHERE step_execution_id = ? AND version = ?",
		se.Version+1, nullableTime(se.EndTime), string(se.Status), string(se.ExitStatus), se.ExitMessage,
		se.CommitCount, se.ReadCount, se.FilterCount, se.WriteCount, se.SkipReadCount, se.SkipWriteCount,
		se.SkipProcessCount, se.RollbackCount, failures, ec, dbTime(now),
		se.ID, se.Version,
	)
	if err != nil {
		return exception.NewBatchError("job_repository", fmt.Sprintf("StepExecution (ID: %s) の更新に失敗しました", se.ID), err, true, false)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return exception.NewBatchError("job_repository", fmt.Sprintf("StepExecution (ID: %s) の更新件数の取得に失敗しました", se.ID), err, false, false)
	}
	if affected == 0 {
		return exception.NewBatchErrorf("job_repository", "StepExecution (ID: %s, Version: %d) を更新できません: %w", se.ID, se.Version, exception.ErrOptimisticLockingFailure)
	}
	se.Version++
	se.LastUpdated = now
	return nil
}

// FindStepExecutionByID は ID で StepExecution を取得します。
func (r *SQLStepExecutionRepository) FindStepExecutionByID(ctx context.Context, executionID string) (*core.StepExecution, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+stepExecutionColumns+" FROM batch_step_execution WHERE step_execution_id = ?", executionID)
	se, err := scanStepExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchErrorf("job_repository", "StepExecution (ID: %s): %w", executionID, exception.ErrNoSuchStepExecution)
	}
	if err != nil {
		return nil, exception.NewBatchError("job_repository", fmt.Sprintf("StepExecution (ID: %s) の取得に失敗しました", executionID), err, false, false)
	}
	return se, nil
}

// FindStepExecutionsByJobExecutionID は開始順に StepExecution を返します。
func (r *SQLStepExecutionRepository) FindStepExecutionsByJobExecutionID(ctx context.Context, jobExecutionID string) ([]*core.StepExecution, error) {
	return r.queryStepExecutions(ctx,
		"SELECT "+stepExecutionColumns+" FROM batch_step_execution WHERE job_execution_id = ? ORDER BY start_time, step_execution_id",
		jobExecutionID,
	)
}

// FindLastStepExecution は JobInstance の全実行を通じた指定ステップの最新実行を返します。
func (r *SQLStepExecutionRepository) FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*core.StepExecution, error) {
	steps, err := r.queryStepExecutions(ctx,
		"SELECT s."+stepExecutionColumnsWithAlias("s")+" FROM batch_step_execution s "+
			"JOIN batch_job_execution j ON s.job_execution_id = j.job_execution_id "+
			"WHERE j.job_instance_id = ? AND s.step_name = ? ORDER BY j.execution_seq DESC, s.start_time DESC, s.step_execution_id DESC LIMIT 1",
		jobInstanceID, stepName,
	)
	if err != nil || len(steps) == 0 {
		return nil, err
	}
	return steps[0], nil
}

func stepExecutionColumnsWithAlias(alias string) string {
	return fmt.Sprintf("step_execution_id, %[1]s.version, %[1]s.step_name, %[1]s.job_execution_id, %[1]s.start_time, %[1]s.end_time, "+
		"%[1]s.status, %[1]s.exit_status, %[1]s.exit_message, %[1]s.commit_count, %[1]s.read_count, %[1]s.filter_count, %[1]s.write_count, "+
		"%[1]s.read_skip_count, %[1]s.write_skip_count, %[1]s.process_skip_count, %[1]s.rollback_count, "+
		"%[1]s.failure_exceptions, %[1]s.execution_context, %[1]s.last_updated", alias)
}

func (r *SQLStepExecutionRepository) queryStepExecutions(ctx context.Context, query string, args ...any) ([]*core.StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, exception.NewBatchError("job_repository", "StepExecution の検索に失敗しました", err, false, false)
	}
	defer rows.Close()

	steps := make([]*core.StepExecution, 0)
	for rows.Next() {
		se, err := scanStepExecution(rows)
		if err != nil {
			return nil, exception.NewBatchError("job_repository", "StepExecution の読み込みに失敗しました", err, false, false)
		}
		steps = append(steps, se)
	}
	if err := rows.Err(); err != nil {
		return nil, exception.NewBatchError("job_repository", "StepExecution の読み込みに失敗しました", err, false, false)
	}
	return steps, nil
}

// scanStepExecution は StepExecution を読み込みます。JobExecution には ID のみが設定されます。
func scanStepExecution(row rowScanner) (*core.StepExecution, error) {
	var (
		se                        core.StepExecution
		jobExecutionID            string
		status, exitStatus        string
		endTime                   sql.NullTime
		exitMessage, failures, ec sql.NullString
	)
	err := row.Scan(&se.ID, &se.Version, &se.StepName, &jobExecutionID, &se.StartTime, &endTime, &status, &exitStatus, &exitMessage,
		&se.CommitCount, &se.ReadCount, &se.FilterCount, &se.WriteCount, &se.SkipReadCount, &se.SkipWriteCount, &se.SkipProcessCount, &se.RollbackCount,
		&failures, &ec, &se.LastUpdated)
	if err != nil {
		return nil, err
	}
	se.Status = core.JobStatus(status)
	se.ExitStatus = core.ExitStatus(exitStatus)
	se.EndTime = fromNullTime(endTime)
	se.ExitMessage = fromNullString(exitMessage)
	if se.ExecutionContext, err = serialization.UnmarshalExecutionContext(fromNullString(ec)); err != nil {
		return nil, err
	}
	if se.Failures, err = serialization.UnmarshalFailures(fromNullString(failures)); err != nil {
		return nil, err
	}
	se.JobExecution = &core.JobExecution{ID: jobExecutionID}
	return &se, nil
}
