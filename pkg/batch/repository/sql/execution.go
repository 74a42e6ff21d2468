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

const jobExecutionColumns = "job_execution_id, version, job_instance_id, job_name, create_time, start_time, end_time, " +
	"status, exit_status, exit_code, exit_message, failure_exceptions, execution_context, current_step_name, last_updated"

const runningStatuses = "('STARTING', 'STARTED', 'STOPPING')"

// SQLJobExecutionRepository は batch_job_execution と batch_job_execution_params を扱います。
type SQLJobExecutionRepository struct {
	db        database.DBConnection
	instances *SQLJobInstanceRepository
	steps     *SQLStepExecutionRepository
}

// NewSQLJobExecutionRepository は新しい SQLJobExecutionRepository を作成します。
func NewSQLJobExecutionRepository(db database.DBConnection, instances *SQLJobInstanceRepository, steps *SQLStepExecutionRepository) *SQLJobExecutionRepository {
	return &SQLJobExecutionRepository{db: db, instances: instances, steps: steps}
}

// SaveJobExecution は JobExecution とパラメータを 1 トランザクションで保存します。
func (r *SQLJobExecutionRepository) SaveJobExecution(ctx context.Context, je *core.JobExecution) error {
	if je.JobInstanceID == "" {
		return exception.NewBatchError("job_repository", "JobInstance に紐付かない JobExecution は保存できません", nil, false, false)
	}
	if je.ID == "" {
		je.ID = uuid.New().String()
	}
	je.Version = 0
	je.LastUpdated = time.Now()

	ec, failures, err := marshalExecutionState(je.ExecutionContext, je.Failures)
	if err != nil {
		return err
	}

	err = withTx(ctx, r.db, func(tx database.Tx) error {
		// execution_seq は JobInstance 内の通し番号で、create_time が同じでも最新の実行を一意に決めます。
		var seq int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(execution_seq), 0) FROM batch_job_execution WHERE job_instance_id = ?", je.JobInstanceID,
		).Scan(&seq); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO batch_job_execution ("+jobExecutionColumns+", execution_seq) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			je.ID, je.Version, je.JobInstanceID, je.JobName, dbTime(je.CreateTime), nullableTime(je.StartTime), nullableTime(je.EndTime),
			string(je.Status), string(je.ExitStatus), je.ExitCode, je.ExitMessage, failures, ec, je.CurrentStepName, dbTime(je.LastUpdated),
			seq+1,
		)
		if err != nil {
			return err
		}
		return insertJobParameters(ctx, tx, je.ID, je.Parameters)
	})
	if err != nil {
		return exception.NewBatchError("job_repository", fmt.Sprintf("JobExecution (ID: %s) の保存に失敗しました", je.ID), err, false, false)
	}
	logger.Debugf("JobExecution (ID: %s, ジョブ: %s) を保存しました。", je.ID, je.JobName)
	return nil
}

// UpdateJobExecution は Version が一致する場合のみ更新します。
func (r *SQLJobExecutionRepository) UpdateJobExecution(ctx context.Context, je *core.JobExecution) error {
	ec, failures, err := marshalExecutionState(je.ExecutionContext, je.Failures)
	if err != nil {
		return err
	}
	now := time.Now()

	res, err := r.db.ExecContext(ctx,
		"UPDATE batch_job_execution SET version = ?, start_time = ?, end_time = ?, status = ?, exit_status = ?, exit_code = ?, "+
			"exit_message = ?, failure_exceptions = ?, execution_context = ?, current_step_name = ?, last_updated = ? "+
			"WHERE job_execution_id = ? AND version = ?",
		je.Version+1, nullableTime(je.StartTime), nullableTime(je.EndTime), string(je.Status), string(je.ExitStatus), je.ExitCode,
		je.ExitMessage, failures, ec, je.CurrentStepName, dbTime(now),
		je.ID, je.Version,
	)
	if err != nil {
		return exception.NewBatchError("job_repository", fmt.Sprintf("JobExecution (ID: %s) の更新に失敗しました", je.ID), err, true, false)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return exception.NewBatchError("job_repository", fmt.Sprintf("JobExecution (ID: %s) の更新件数の取得に失敗しました", je.ID), err, false, false)
	}
	if affected == 0 {
		var current int
		err := r.db.QueryRowContext(ctx, "SELECT version FROM batch_job_execution WHERE job_execution_id = ?", je.ID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return exception.NewBatchErrorf("job_repository", "JobExecution (ID: %s): %w", je.ID, exception.ErrNoSuchJobExecution)
		}
		return exception.NewBatchErrorf("job_repository", "JobExecution (ID: %s) のバージョンが一致しません (保持: %d, DB: %d): %w",
			je.ID, je.Version, current, exception.ErrOptimisticLockingFailure)
	}
	je.Version++
	je.LastUpdated = now
	return nil
}

// FindJobExecutionByID は ID で JobExecution を取得します。
func (r *SQLJobExecutionRepository) FindJobExecutionByID(ctx context.Context, executionID string) (*core.JobExecution, error) {
	executions, err := r.queryJobExecutions(ctx, "SELECT "+jobExecutionColumns+" FROM batch_job_execution WHERE job_execution_id = ?", executionID)
	if err != nil {
		return nil, err
	}
	if len(executions) == 0 {
		return nil, exception.NewBatchErrorf("job_repository", "JobExecution (ID: %s): %w", executionID, exception.ErrNoSuchJobExecution)
	}
	return executions[0], nil
}

// FindLatestJobExecution は JobInstance の最新の実行を返します。
func (r *SQLJobExecutionRepository) FindLatestJobExecution(ctx context.Context, jobInstanceID string) (*core.JobExecution, error) {
	executions, err := r.queryJobExecutions(ctx,
		"SELECT "+jobExecutionColumns+" FROM batch_job_execution WHERE job_instance_id = ? ORDER BY execution_seq DESC LIMIT 1",
		jobInstanceID,
	)
	if err != nil || len(executions) == 0 {
		return nil, err
	}
	return executions[0], nil
}

// GetLastJobExecution はジョブ名とパラメータから最新の実行を返します。
func (r *SQLJobExecutionRepository) GetLastJobExecution(ctx context.Context, jobName string, params core.JobParameters) (*core.JobExecution, error) {
	instance, err := r.instances.FindJobInstanceByJobNameAndParameters(ctx, jobName, params)
	if err != nil || instance == nil {
		return nil, err
	}
	return r.FindLatestJobExecution(ctx, instance.ID)
}

// FindJobExecutionsByJobInstance は JobInstance の全実行を新しい順に返します。
func (r *SQLJobExecutionRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstanceID string) ([]*core.JobExecution, error) {
	return r.queryJobExecutions(ctx,
		"SELECT "+jobExecutionColumns+" FROM batch_job_execution WHERE job_instance_id = ? ORDER BY execution_seq DESC",
		jobInstanceID,
	)
}

// FindJobExecutions は全ジョブの実行をページングして返します。
func (r *SQLJobExecutionRepository) FindJobExecutions(ctx context.Context, start, count int) ([]*core.JobExecution, error) {
	return r.queryJobExecutions(ctx,
		"SELECT "+jobExecutionColumns+" FROM batch_job_execution ORDER BY create_time DESC, execution_seq DESC, job_execution_id DESC LIMIT ? OFFSET ?",
		count, start,
	)
}

// FindJobExecutionsByJobName はジョブ名で絞り込んでページングして返します。
func (r *SQLJobExecutionRepository) FindJobExecutionsByJobName(ctx context.Context, jobName string, start, count int) ([]*core.JobExecution, error) {
	return r.queryJobExecutions(ctx,
		"SELECT "+jobExecutionColumns+" FROM batch_job_execution WHERE job_name = ? ORDER BY create_time DESC, execution_seq DESC, job_execution_id DESC LIMIT ? OFFSET ?",
		jobName, count, start,
	)
}

// FindRunningJobExecutions は終了していない実行を返します。
func (r *SQLJobExecutionRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*core.JobExecution, error) {
	if jobName == "" {
		return r.queryJobExecutions(ctx,
			"SELECT "+jobExecutionColumns+" FROM batch_job_execution WHERE status IN "+runningStatuses+" ORDER BY create_time DESC, execution_seq DESC, job_execution_id DESC")
	}
	return r.queryJobExecutions(ctx,
		"SELECT "+jobExecutionColumns+" FROM batch_job_execution WHERE job_name = ? AND status IN "+runningStatuses+" ORDER BY create_time DESC, execution_seq DESC, job_execution_id DESC",
		jobName,
	)
}

// CountJobExecutions は全実行数を返します。
func (r *SQLJobExecutionRepository) CountJobExecutions(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_job_execution").Scan(&count); err != nil {
		return 0, exception.NewBatchError("job_repository", "JobExecution 数の取得に失敗しました", err, false, false)
	}
	return count, nil
}

// CountJobExecutionsByJobName はジョブ名ごとの実行数を返します。
func (r *SQLJobExecutionRepository) CountJobExecutionsByJobName(ctx context.Context, jobName string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_job_execution WHERE job_name = ?", jobName).Scan(&count); err != nil {
		return 0, exception.NewBatchError("job_repository", fmt.Sprintf("JobExecution 数 (ジョブ: %s) の取得に失敗しました", jobName), err, false, false)
	}
	return count, nil
}

// queryJobExecutions は結果をすべて読み終えて rows を閉じてから、パラメータと StepExecution を読み込みます。
// 接続数 1 の SQLite で rows を開いたまま別クエリを発行しないための順序です。
func (r *SQLJobExecutionRepository) queryJobExecutions(ctx context.Context, query string, args ...any) ([]*core.JobExecution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, exception.NewBatchError("job_repository", "JobExecution の検索に失敗しました", err, false, false)
	}
	executions := make([]*core.JobExecution, 0)
	for rows.Next() {
		je, err := scanJobExecution(rows)
		if err != nil {
			rows.Close()
			return nil, exception.NewBatchError("job_repository", "JobExecution の読み込みに失敗しました", err, false, false)
		}
		executions = append(executions, je)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, exception.NewBatchError("job_repository", "JobExecution の読み込みに失敗しました", err, false, false)
	}
	rows.Close()

	for _, je := range executions {
		if je.Parameters, err = loadJobParameters(ctx, r.db, je.ID); err != nil {
			return nil, exception.NewBatchError("job_repository", fmt.Sprintf("JobExecution (ID: %s) のパラメータ読み込みに失敗しました", je.ID), err, false, false)
		}
		steps, err := r.steps.FindStepExecutionsByJobExecutionID(ctx, je.ID)
		if err != nil {
			return nil, err
		}
		for _, se := range steps {
			je.AddStepExecution(se)
		}
	}
	return executions, nil
}

func scanJobExecution(row rowScanner) (*core.JobExecution, error) {
	var (
		je                              core.JobExecution
		status, exitStatus              string
		startTime, endTime              sql.NullTime
		exitMessage, failures, ec, step sql.NullString
	)
	err := row.Scan(&je.ID, &je.Version, &je.JobInstanceID, &je.JobName, &je.CreateTime, &startTime, &endTime,
		&status, &exitStatus, &je.ExitCode, &exitMessage, &failures, &ec, &step, &je.LastUpdated)
	if err != nil {
		return nil, err
	}
	je.Status = core.JobStatus(status)
	je.ExitStatus = core.ExitStatus(exitStatus)
	je.StartTime = fromNullTime(startTime)
	je.EndTime = fromNullTime(endTime)
	je.ExitMessage = fromNullString(exitMessage)
	je.CurrentStepName = fromNullString(step)
	je.StepExecutions = make([]*core.StepExecution, 0)
	if je.ExecutionContext, err = serialization.UnmarshalExecutionContext(fromNullString(ec)); err != nil {
		return nil, err
	}
	if je.Failures, err = serialization.UnmarshalFailures(fromNullString(failures)); err != nil {
		return nil, err
	}
	return &je, nil
}

func marshalExecutionState(ec core.ExecutionContext, failures []error) (string, string, error) {
	ecData, err := serialization.MarshalExecutionContext(ec)
	if err != nil {
		return "", "", err
	}
	failureData, err := serialization.MarshalFailures(failures)
	if err != nil {
		return "", "", err
	}
	return ecData, failureData, nil
}
