package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"batchadmin/pkg/batch/database"
	core "batchadmin/pkg/batch/job/core"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

const jobInstanceColumns = "job_instance_id, version, job_name, job_key, create_time"

// SQLJobInstanceRepository は batch_job_instance テーブルを扱います。
type SQLJobInstanceRepository struct {
	db database.DBConnection
}

// NewSQLJobInstanceRepository は新しい SQLJobInstanceRepository を作成します。
func NewSQLJobInstanceRepository(db database.DBConnection) *SQLJobInstanceRepository {
	return &SQLJobInstanceRepository{db: db}
}

// CreateJobInstance は JobInstance を作成して永続化します。
func (r *SQLJobInstanceRepository) CreateJobInstance(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	instance := core.NewJobInstance(jobName, params)
	instance.ID = uuid.New().String()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO batch_job_instance ("+jobInstanceColumns+") VALUES (?, ?, ?, ?, ?)",
		instance.ID, instance.Version, instance.JobName, instance.JobKey, dbTime(instance.CreateTime),
	)
	if err != nil {
		return nil, exception.NewBatchError("job_repository", fmt.Sprintf("JobInstance (ジョブ: %s) の保存に失敗しました", jobName), err, false, false)
	}
	logger.Debugf("JobInstance (ID: %s, ジョブ: %s, JobKey: %s) を作成しました。", instance.ID, jobName, instance.JobKey)
	return instance, nil
}

// FindJobInstanceByJobNameAndParameters はジョブ名と JobKey で検索します。
func (r *SQLJobInstanceRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params core.JobParameters) (*core.JobInstance, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+jobInstanceColumns+" FROM batch_job_instance WHERE job_name = ? AND job_key = ?",
		jobName, params.ToJobKey(),
	)
	instance, err := scanJobInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, exception.NewBatchError("job_repository", fmt.Sprintf("JobInstance (ジョブ: %s) の検索に失敗しました", jobName), err, false, false)
	}
	return instance, nil
}

// FindJobInstanceByID は ID で検索します。
func (r *SQLJobInstanceRepository) FindJobInstanceByID(ctx context.Context, instanceID string) (*core.JobInstance, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+jobInstanceColumns+" FROM batch_job_instance WHERE job_instance_id = ?", instanceID)
	instance, err := scanJobInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBatchErrorf("job_repository", "JobInstance (ID: %s): %w", instanceID, exception.ErrNoSuchJobInstance)
	}
	if err != nil {
		return nil, exception.NewBatchError("job_repository", fmt.Sprintf("JobInstance (ID: %s) の取得に失敗しました", instanceID), err, false, false)
	}
	return instance, nil
}

// FindJobInstancesByJobName は新しい順にページングして返します。
func (r *SQLJobInstanceRepository) FindJobInstancesByJobName(ctx context.Context, jobName string, start, count int) ([]*core.JobInstance, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+jobInstanceColumns+" FROM batch_job_instance WHERE job_name = ? ORDER BY create_time DESC, job_instance_id DESC LIMIT ? OFFSET ?",
		jobName, count, start,
	)
	if err != nil {
		return nil, exception.NewBatchError("job_repository", fmt.Sprintf("JobInstance 一覧 (ジョブ: %s) の取得に失敗しました", jobName), err, false, false)
	}
	defer rows.Close()

	instances := make([]*core.JobInstance, 0)
	for rows.Next() {
		instance, err := scanJobInstance(rows)
		if err != nil {
			return nil, exception.NewBatchError("job_repository", "JobInstance の読み込みに失敗しました", err, false, false)
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

// CountJobInstances はジョブ名ごとの JobInstance 数を返します。
func (r *SQLJobInstanceRepository) CountJobInstances(ctx context.Context, jobName string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM batch_job_instance WHERE job_name = ?", jobName).Scan(&count); err != nil {
		return 0, exception.NewBatchError("job_repository", fmt.Sprintf("JobInstance 数 (ジョブ: %s) の取得に失敗しました", jobName), err, false, false)
	}
	return count, nil
}

// GetJobNames は実行履歴のあるジョブ名を返します。
func (r *SQLJobInstanceRepository) GetJobNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT DISTINCT job_name FROM batch_job_instance ORDER BY job_name")
	if err != nil {
		return nil, exception.NewBatchError("job_repository", "ジョブ名一覧の取得に失敗しました", err, false, false)
	}
	defer rows.Close()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, exception.NewBatchError("job_repository", "ジョブ名の読み込みに失敗しました", err, false, false)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobInstance(row rowScanner) (*core.JobInstance, error) {
	instance := &core.JobInstance{}
	if err := row.Scan(&instance.ID, &instance.Version, &instance.JobName, &instance.JobKey, &instance.CreateTime); err != nil {
		return nil, err
	}
	return instance, nil
}
