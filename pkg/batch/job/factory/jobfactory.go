package factory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/job/component"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/incrementer"
	"batchadmin/pkg/batch/job/jsl"
	"batchadmin/pkg/batch/job/runner"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// LaunchMode はジョブの起動方式です。
type LaunchMode string

const (
	// LaunchModeSync は呼び出し元のゴルーチンでジョブを実行します。
	LaunchModeSync LaunchMode = "sync"
	// LaunchModeAsync はジョブを別ゴルーチンで実行し、即座に制御を返します。
	LaunchModeAsync LaunchMode = "async"
)

// ParseLaunchMode は文字列を LaunchMode に変換します。空文字は def を返します。
func ParseLaunchMode(s string, def LaunchMode) (LaunchMode, error) {
	switch LaunchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return def, nil
	case LaunchModeSync:
		return LaunchModeSync, nil
	case LaunchModeAsync:
		return LaunchModeAsync, nil
	default:
		return "", fmt.Errorf("不明な起動方式 '%s' です (sync, async のいずれかを指定してください)", s)
	}
}

// JobBuilder は、特定の Job を生成するための関数型です。
// ジョブの起動ごとに呼び出され、新しい core.Job を返します。
type JobBuilder func(cfg *config.Config, repo job.JobRepository) (core.Job, error)

// JobFactory は Job オブジェクトを生成するためのファクトリです。
// Go コードで組み立てるジョブと JSL で定義されたジョブを同じ名前空間で管理します。
type JobFactory struct {
	config        *config.Config
	jobRepository job.JobRepository
	registry      *component.Registry

	mu          sync.RWMutex
	jobBuilders map[string]JobBuilder
	launchModes map[string]LaunchMode
}

// NewJobFactory は新しい JobFactory のインスタンスを作成します。
func NewJobFactory(cfg *config.Config, repo job.JobRepository, registry *component.Registry) *JobFactory {
	if registry == nil {
		registry = component.NewRegistry()
	}
	return &JobFactory{
		config:        cfg,
		jobRepository: repo,
		registry:      registry,
		jobBuilders:   make(map[string]JobBuilder),
		launchModes:   make(map[string]LaunchMode),
	}
}

// Registry は JSL から参照されるコンポーネントの Registry を返します。
func (f *JobFactory) Registry() *component.Registry {
	return f.registry
}

// RegisterJobBuilder は、指定された名前でジョブビルド関数を登録します。
// このメソッドは main.go など、アプリケーションの初期化フェーズで呼び出されます。
func (f *JobFactory) RegisterJobBuilder(name string, builder JobBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.jobBuilders[name]; exists {
		logger.Warnf("JobFactory: ジョブ '%s' を上書き登録します。", name)
	}
	f.jobBuilders[name] = builder
	logger.Debugf("JobFactory: ジョブビルダー '%s' を登録しました。", name)
}

// SetLaunchMode はジョブの起動方式を設定します。
func (f *JobFactory) SetLaunchMode(name string, mode LaunchMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.launchModes[name] = mode
}

// RegisterJSL は JSL のジョブ定義をジョブ ID の名前で登録します。
// コンポーネント参照は CreateJob のたびに Registry から解決されます。
func (f *JobFactory) RegisterJSL(def jsl.Job) error {
	if err := jsl.Validate(def); err != nil {
		return err
	}
	inc, err := incrementer.New(def.Incrementer)
	if err != nil {
		return exception.NewBatchError("job_factory", fmt.Sprintf("JSL ジョブ '%s' の incrementer が不正です", def.ID), err, false, false)
	}
	mode, err := ParseLaunchMode(def.Launch, "")
	if err != nil {
		return exception.NewBatchError("job_factory", fmt.Sprintf("JSL ジョブ '%s' の起動方式が不正です", def.ID), err, false, false)
	}

	f.RegisterJobBuilder(def.ID, func(cfg *config.Config, repo job.JobRepository) (core.Job, error) {
		flow, jobListeners, err := jsl.NewConverter(f.registry, cfg, repo).ConvertJSLToCoreFlow(def)
		if err != nil {
			return nil, err
		}
		flowJob := runner.NewFlowJob(def.ID, flow, repo, jobListeners)
		if inc != nil {
			flowJob.SetIncrementer(inc)
		}
		flowJob.SetRestartable(def.IsRestartable())
		return flowJob, nil
	})
	if mode != "" {
		f.SetLaunchMode(def.ID, mode)
	}
	return nil
}

// CreateJob は指定されたジョブ名の core.Job オブジェクトを作成します。
// 登録されていない場合は exception.ErrNoSuchJob をラップしたエラーを返します。
func (f *JobFactory) CreateJob(ctx context.Context, jobName string) (core.Job, error) {
	logger.Debugf("JobFactory で Job '%s' の作成を試みます。", jobName)

	f.mu.RLock()
	builder, found := f.jobBuilders[jobName]
	f.mu.RUnlock()
	if !found {
		return nil, exception.NewBatchErrorf("job_factory", "ジョブ '%s': %w", jobName, exception.ErrNoSuchJob)
	}

	batchJob, err := builder(f.config, f.jobRepository)
	if err != nil {
		return nil, exception.NewBatchError("job_factory", fmt.Sprintf("ジョブ '%s' のインスタンス化に失敗しました", jobName), err, false, false)
	}
	return batchJob, nil
}

// GetJobNames は登録済みのジョブ名をソートして返します。
func (f *JobFactory) GetJobNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.jobBuilders))
	for name := range f.jobBuilders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered はジョブが登録済みかどうかを返します。
func (f *JobFactory) IsRegistered(jobName string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.jobBuilders[jobName]
	return ok
}

// LaunchMode はジョブの起動方式を返します。個別の指定が無ければ batch.task_executor に従います。
func (f *JobFactory) LaunchMode(jobName string) LaunchMode {
	f.mu.RLock()
	mode, ok := f.launchModes[jobName]
	f.mu.RUnlock()
	if ok {
		return mode
	}
	if f.config != nil {
		if m, err := ParseLaunchMode(f.config.Batch.TaskExecutor, LaunchModeSync); err == nil {
			return m
		}
		logger.Warnf("JobFactory: batch.task_executor '%s' が不正です。sync として扱います。", f.config.Batch.TaskExecutor)
	}
	return LaunchModeSync
}
