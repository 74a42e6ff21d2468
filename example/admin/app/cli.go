package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	core "batchadmin/pkg/batch/job/core"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// pollInterval は非同期ジョブの終了を確認する間隔です。
const pollInterval = 200 * time.Millisecond

// shutdownTimeout は終了時に実行中のジョブを待つ最大時間です。
const shutdownTimeout = 30 * time.Second

// paramFlags は繰り返し指定できる -param フラグです。
type paramFlags []string

func (p *paramFlags) String() string {
	return strings.Join(*p, ",")
}

func (p *paramFlags) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// options はコマンドライン引数です。
type options struct {
	jobName  string
	params   paramFlags
	envFile  string
	list     bool
	statusID string
}

func parseOptions(args []string, output io.Writer) (*options, error) {
	opts := &options{}
	defaultEnv := os.Getenv("ENV_FILE_PATH")
	if defaultEnv == "" {
		defaultEnv = ".env"
	}

	flags := flag.NewFlagSet("batchadmin", flag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVar(&opts.jobName, "job", "", "起動するジョブ名 (省略時は batch.job_name)")
	flags.Var(&opts.params, "param", "ジョブパラメータ key=value。key(long)=1 で型を指定、-key=value で非識別 (繰り返し指定可)")
	flags.StringVar(&opts.envFile, "env", defaultEnv, ".env ファイルのパス")
	flags.BoolVar(&opts.list, "list", false, "ジョブの一覧を表示する")
	flags.StringVar(&opts.statusID, "status", "", "指定した JobExecution の状態を表示する")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

// buildJobParameters は -param の値から JobParameters を作成します。
func buildJobParameters(exprs []string) (core.JobParameters, error) {
	params := core.NewJobParameters()
	for _, expr := range exprs {
		key, param, err := core.ParseJobParameter(expr)
		if err != nil {
			return core.JobParameters{}, err
		}
		params.PutParameter(key, param)
	}
	return params, nil
}

// RunApplication はコマンドライン引数に従ってアプリケーションを実行し、終了コードを返します。
func RunApplication(ctx context.Context, args []string, stdout io.Writer, embeddedConfig []byte, jobDefinitions fs.FS) int {
	opts, err := parseOptions(args, stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	params, err := buildJobParameters(opts.params)
	if err != nil {
		logger.Errorf("ジョブパラメータが不正です: %v", err)
		return 2
	}

	application, err := NewApplication(ctx, opts.envFile, embeddedConfig, jobDefinitions)
	if err != nil {
		return handleApplicationError(err, nil, opts.jobName)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if closeErr := application.Close(closeCtx); closeErr != nil {
			logger.Errorf("バッチアプリケーションのリソースクローズ中にエラーが発生しました: %v", closeErr)
		} else {
			logger.Infof("バッチアプリケーションのリソースを正常にクローズしました。")
		}
	}()

	switch {
	case opts.list:
		return printJobs(ctx, application, stdout)
	case opts.statusID != "":
		return printStatus(ctx, application, stdout, opts.statusID)
	}

	jobName := opts.jobName
	if jobName == "" {
		jobName = application.Initializer.Config.Batch.JobName
	}
	if jobName == "" {
		logger.Errorf("起動するジョブが指定されていません。-job または batch.job_name を指定してください。")
		return 2
	}
	return executeJob(ctx, application, jobName, params)
}

// executeJob はジョブを起動し、終了まで待ってから終了コードを返します。
func executeJob(ctx context.Context, application *Application, jobName string, params core.JobParameters) int {
	logger.Infof("実行する Job: '%s'", jobName)
	jobExecution, err := application.JobService.Launch(ctx, jobName, params)
	if err != nil {
		return handleApplicationError(err, jobExecution, jobName)
	}
	if jobExecution.IsRunning() {
		jobExecution, err = waitForCompletion(ctx, application, jobExecution.ID)
		if err != nil {
			return handleApplicationError(err, jobExecution, jobName)
		}
	}
	logger.Infof("Job '%s' (Execution ID: %s) が終了しました。Status: %s, ExitStatus: %s",
		jobName, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
	return handleApplicationError(nil, jobExecution, jobName)
}

// waitForCompletion は非同期で起動したジョブが終了するまで待ちます。
// ctx がキャンセルされた場合はジョブを停止してから終了を待ちます。
func waitForCompletion(ctx context.Context, application *Application, executionID string) (*core.JobExecution, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	stopRequested := false
	for {
		select {
		case <-ctx.Done():
			if !stopRequested {
				stopRequested = true
				logger.Warnf("JobExecution (ID: %s) の停止を要求します: %v", executionID, ctx.Err())
				if _, err := application.JobService.Stop(context.WithoutCancel(ctx), executionID); err != nil && !errors.Is(err, exception.ErrJobExecutionNotRunning) {
					logger.Errorf("JobExecution (ID: %s) の停止に失敗しました: %v", executionID, err)
				}
			}
			ctx = context.WithoutCancel(ctx)
		case <-ticker.C:
		}
		jobExecution, err := application.JobService.GetJobExecution(ctx, executionID)
		if err != nil {
			return nil, err
		}
		if !jobExecution.IsRunning() {
			return jobExecution, nil
		}
	}
}

// printJobs はジョブの一覧を表示します。
func printJobs(ctx context.Context, application *Application, out io.Writer) int {
	svc := application.JobService
	// count が負の場合は全件
	names, err := svc.ListJobs(ctx, 0, -1)
	if err != nil {
		return handleApplicationError(err, nil, "")
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tLAUNCHABLE\tINCREMENTABLE\tEXECUTIONS")
	for _, name := range names {
		count, err := svc.CountJobExecutionsForJob(ctx, name)
		if err != nil {
			return handleApplicationError(err, nil, name)
		}
		fmt.Fprintf(w, "%s\t%t\t%t\t%d\n", name, svc.IsLaunchable(name), svc.IsIncrementable(ctx, name), count)
	}
	if err := w.Flush(); err != nil {
		logger.Errorf("ジョブ一覧の出力に失敗しました: %v", err)
		return 1
	}
	return 0
}

// printStatus は JobExecution と StepExecution の状態を表示します。
func printStatus(ctx context.Context, application *Application, out io.Writer, executionID string) int {
	svc := application.JobService
	jobExecution, err := svc.GetJobExecution(ctx, executionID)
	if err != nil {
		return handleApplicationError(err, nil, "")
	}
	steps, err := svc.GetStepExecutions(ctx, executionID)
	if err != nil {
		return handleApplicationError(err, jobExecution, jobExecution.JobName)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "JobExecution:\t%s\n", jobExecution.ID)
	fmt.Fprintf(w, "Job:\t%s (Instance: %s)\n", jobExecution.JobName, jobExecution.JobInstanceID)
	fmt.Fprintf(w, "Parameters:\t%s\n", jobExecution.Parameters)
	fmt.Fprintf(w, "Status:\t%s (%s)\n", jobExecution.Status, jobExecution.ExitStatus)
	fmt.Fprintf(w, "Start:\t%s\n", formatTime(jobExecution.StartTime))
	fmt.Fprintf(w, "End:\t%s\n", formatTime(jobExecution.EndTime))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "STEP\tSTATUS\tREAD\tWRITE\tCOMMIT\tROLLBACK\tSKIP")
	for _, se := range steps {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			se.StepName, se.Status, se.ReadCount, se.WriteCount, se.CommitCount, se.RollbackCount, se.SkipCount())
	}
	if err := w.Flush(); err != nil {
		logger.Errorf("状態の出力に失敗しました: %v", err)
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}

// handleApplicationError はアプリケーションのエラーを処理し、適切な終了コードを返します。
func handleApplicationError(err error, jobExecution *core.JobExecution, jobName string) int {
	hasError := false

	if err != nil {
		hasError = true
		if jobExecution != nil {
			logger.Errorf("Job '%s' (Execution ID: %s) の実行中にエラーが発生しました: %v", jobName, jobExecution.ID, err)
		} else {
			logger.Errorf("Job '%s' の処理中にエラーが発生しました: %v", jobName, err)
		}

		var be *exception.BatchError
		if errors.As(err, &be) {
			logger.Errorf("BatchError 詳細: Module=%s, Message=%s, OriginalErr=%v", be.Module, be.Message, be.OriginalErr)
			if be.StackTrace != "" {
				logger.Debugf("BatchError StackTrace:\n%s", be.StackTrace)
			}
		}
	}

	if jobExecution != nil && jobExecution.Status.IsUnsuccessful() {
		hasError = true
		logger.Errorf("Job '%s' は %s で終了しました。詳細は JobExecution (ID: %s) およびログを確認してください。",
			jobExecution.JobName, jobExecution.Status, jobExecution.ID)
		for i, f := range jobExecution.Failures {
			logger.Errorf("  - 失敗 %d: %v", i+1, f)
		}
	}

	if hasError {
		return 1
	}
	return 0
}
