package core

import (
	"time"
)

// JobStatus はジョブ・ステップ実行の状態 (BatchStatus) を表します。
type JobStatus string

const (
	BatchStatusStarting  JobStatus = "STARTING"
	BatchStatusStarted   JobStatus = "STARTED"
	BatchStatusStopping  JobStatus = "STOPPING"
	BatchStatusStopped   JobStatus = "STOPPED"
	BatchStatusCompleted JobStatus = "COMPLETED"
	BatchStatusFailed    JobStatus = "FAILED"
	BatchStatusAbandoned JobStatus = "ABANDONED"
	BatchStatusUnknown   JobStatus = "UNKNOWN"
)

// IsRunning は実行中 (STARTING, STARTED, STOPPING) かどうかを返します。
func (s JobStatus) IsRunning() bool {
	switch s {
	case BatchStatusStarting, BatchStatusStarted, BatchStatusStopping:
		return true
	default:
		return false
	}
}

// IsFinished は JobStatus が終了状態かどうかを判定します。
func (s JobStatus) IsFinished() bool {
	return !s.IsRunning()
}

// IsUnsuccessful は失敗系の終了状態 (FAILED, STOPPED, ABANDONED, UNKNOWN) かどうかを返します。
func (s JobStatus) IsUnsuccessful() bool {
	switch s {
	case BatchStatusFailed, BatchStatusStopped, BatchStatusAbandoned, BatchStatusUnknown:
		return true
	default:
		return false
	}
}

// ToExitStatus は JobStatus を対応する ExitStatus に変換します。
func (s JobStatus) ToExitStatus() ExitStatus {
	switch s {
	case BatchStatusCompleted:
		return ExitStatusCompleted
	case BatchStatusFailed:
		return ExitStatusFailed
	case BatchStatusStopped:
		return ExitStatusStopped
	case BatchStatusStarting, BatchStatusStarted, BatchStatusStopping:
		return ExitStatusExecuting
	default:
		return ExitStatusUnknown
	}
}

// ExitStatus はジョブ/ステップの終了時の詳細なステータスを表します。
type ExitStatus string

const (
	ExitStatusUnknown   ExitStatus = "UNKNOWN"
	ExitStatusExecuting ExitStatus = "EXECUTING"
	ExitStatusCompleted ExitStatus = "COMPLETED"
	ExitStatusNoOp      ExitStatus = "NOOP"
	ExitStatusFailed    ExitStatus = "FAILED"
	ExitStatusStopped   ExitStatus = "STOPPED"
)

// ExitCode はプロセス終了コードへの対応です。
func (e ExitStatus) ExitCode() int {
	switch e {
	case ExitStatusCompleted, ExitStatusNoOp:
		return 0
	case ExitStatusStopped:
		return 2
	case ExitStatusUnknown, ExitStatusExecuting:
		return 3
	default:
		return 1
	}
}

// JobInstance はジョブ名と識別パラメータ (JobKey) で一意になる論理的な実行単位です。
type JobInstance struct {
	ID         string
	JobName    string
	JobKey     string
	Version    int
	CreateTime time.Time
}

// NewJobInstance は新しい JobInstance を作成します。ID はリポジトリで採番されます。
func NewJobInstance(jobName string, params JobParameters) *JobInstance {
	return &JobInstance{
		JobName:    jobName,
		JobKey:     params.ToJobKey(),
		CreateTime: time.Now(),
	}
}

// JobExecution はジョブの単一の実行を表します。
// StartTime / EndTime のゼロ値は未設定を意味します。
type JobExecution struct {
	ID               string
	Version          int
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	Status           JobStatus
	ExitStatus       ExitStatus
	ExitCode         int
	ExitMessage      string
	CreateTime       time.Time
	StartTime        time.Time
	EndTime          time.Time
	LastUpdated      time.Time
	Failures         []error
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	CurrentStepName  string
}

// NewJobExecution は STARTING 状態の JobExecution を作成します。
func NewJobExecution(instance *JobInstance, params JobParameters) *JobExecution {
	now := time.Now()
	je := &JobExecution{
		Parameters:       params,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         make([]error, 0),
		StepExecutions:   make([]*StepExecution, 0),
		ExecutionContext: NewExecutionContext(),
	}
	if instance != nil {
		je.JobInstanceID = instance.ID
		je.JobName = instance.JobName
	}
	return je
}

// IsRunning はジョブ実行が終了していないかどうかを返します。
func (je *JobExecution) IsRunning() bool {
	return je.Status.IsRunning()
}

// MarkAsStarted は JobExecution の状態を実行中に更新します。
func (je *JobExecution) MarkAsStarted() {
	now := time.Now()
	je.Status = BatchStatusStarted
	je.ExitStatus = ExitStatusExecuting
	if je.StartTime.IsZero() {
		je.StartTime = now
	}
	je.LastUpdated = now
}

// MarkAsCompleted は JobExecution の状態を完了に更新します。
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed は JobExecution の状態を失敗に更新し、エラー情報を追加します。
func (je *JobExecution) MarkAsFailed(err error) {
	je.AddFailureException(err)
	je.finish(BatchStatusFailed, ExitStatusFailed)
}

// MarkAsStopped は JobExecution の状態を停止に更新します。
func (je *JobExecution) MarkAsStopped() {
	je.finish(BatchStatusStopped, ExitStatusStopped)
}

// MarkAsAbandoned は JobExecution を放棄済みにします。再起動の対象外になります。
func (je *JobExecution) MarkAsAbandoned() {
	je.Status = BatchStatusAbandoned
	je.LastUpdated = time.Now()
}

func (je *JobExecution) finish(status JobStatus, exit ExitStatus) {
	now := time.Now()
	je.Status = status
	je.ExitStatus = exit
	je.ExitCode = exit.ExitCode()
	je.EndTime = now
	je.LastUpdated = now
	if len(je.Failures) > 0 && je.ExitMessage == "" {
		je.ExitMessage = je.Failures[0].Error()
	}
}

// AddFailureException は JobExecution にエラー情報を追加します。
func (je *JobExecution) AddFailureException(err error) {
	if err != nil {
		je.Failures = append(je.Failures, err)
		je.LastUpdated = time.Now()
	}
}

// AddStepExecution はこのジョブ実行に StepExecution を関連付けます。
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	se.JobExecution = je
	je.StepExecutions = append(je.StepExecutions, se)
}

// AllFailureExceptions はジョブとステップの全エラーを返します。
func (je *JobExecution) AllFailureExceptions() []error {
	all := append([]error{}, je.Failures...)
	for _, se := range je.StepExecutions {
		all = append(all, se.Failures...)
	}
	return all
}

// Snapshot は非同期実行中のゴルーチンと共有しないコピーを返します。
func (je *JobExecution) Snapshot() *JobExecution {
	cp := *je
	cp.Parameters = je.Parameters.Copy()
	cp.ExecutionContext = je.ExecutionContext.Copy()
	cp.Failures = append([]error{}, je.Failures...)
	cp.StepExecutions = make([]*StepExecution, 0, len(je.StepExecutions))
	for _, se := range je.StepExecutions {
		sc := *se
		sc.JobExecution = &cp
		sc.ExecutionContext = se.ExecutionContext.Copy()
		sc.Failures = append([]error{}, se.Failures...)
		cp.StepExecutions = append(cp.StepExecutions, &sc)
	}
	return &cp
}

// StepExecution はステップの単一の実行を表します。
type StepExecution struct {
	ID               string
	Version          int
	StepName         string
	JobExecution     *JobExecution
	Status           JobStatus
	ExitStatus       ExitStatus
	ExitMessage      string
	StartTime        time.Time
	EndTime          time.Time
	LastUpdated      time.Time
	Failures         []error
	ReadCount        int
	WriteCount       int
	CommitCount      int
	RollbackCount    int
	FilterCount      int
	SkipReadCount    int
	SkipProcessCount int
	SkipWriteCount   int
	ExecutionContext ExecutionContext
}

// NewStepExecution は STARTING 状態の StepExecution を作成し、JobExecution に追加します。
func NewStepExecution(stepName string, jobExecution *JobExecution) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		StepName:         stepName,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusExecuting,
		StartTime:        now,
		LastUpdated:      now,
		Failures:         make([]error, 0),
		ExecutionContext: NewExecutionContext(),
	}
	if jobExecution != nil {
		jobExecution.AddStepExecution(se)
	}
	return se
}

// JobExecutionID は所属する JobExecution の ID を返します。
func (se *StepExecution) JobExecutionID() string {
	if se.JobExecution == nil {
		return ""
	}
	return se.JobExecution.ID
}

// SkipCount はスキップ件数の合計です。
func (se *StepExecution) SkipCount() int {
	return se.SkipReadCount + se.SkipProcessCount + se.SkipWriteCount
}

// MarkAsStarted は StepExecution の状態を実行中に更新します。
func (se *StepExecution) MarkAsStarted() {
	se.Status = BatchStatusStarted
	se.LastUpdated = time.Now()
}

// MarkAsCompleted は StepExecution の状態を完了に更新します。
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted, ExitStatusCompleted)
}

// MarkAsFailed は StepExecution の状態を失敗に更新し、エラー情報を追加します。
func (se *StepExecution) MarkAsFailed(err error) {
	se.AddFailureException(err)
	se.finish(BatchStatusFailed, ExitStatusFailed)
}

// MarkAsStopped は StepExecution の状態を停止に更新します。
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped, ExitStatusStopped)
}

func (se *StepExecution) finish(status JobStatus, exit ExitStatus) {
	now := time.Now()
	se.Status = status
	if se.ExitStatus == "" || se.ExitStatus == ExitStatusExecuting || status != BatchStatusCompleted {
		se.ExitStatus = exit
	}
	se.EndTime = now
	se.LastUpdated = now
	if len(se.Failures) > 0 && se.ExitMessage == "" {
		se.ExitMessage = se.Failures[0].Error()
	}
}

// AddFailureException は StepExecution にエラー情報を追加します。
func (se *StepExecution) AddFailureException(err error) {
	if err != nil {
		se.Failures = append(se.Failures, err)
	}
}
