package jobs

import (
	"batchadmin/pkg/batch/config"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/job/factory"
	"batchadmin/pkg/batch/job/incrementer"
	joblistener "batchadmin/pkg/batch/job/listener"
	"batchadmin/pkg/batch/job/runner"
	"batchadmin/pkg/batch/repository/job"
	"batchadmin/pkg/batch/step"
	steplistener "batchadmin/pkg/batch/step/listener"
	exception "batchadmin/pkg/batch/util/exception"

	examplereader "batchadmin/example/admin/step/reader"
	examplewriter "batchadmin/example/admin/step/writer"
)

// JavaJobName は Go のコードで組み立てるサンプルジョブの名前です。
const JavaJobName = "javaJob"

// NewJavaJob は ExampleItemReader と ExampleItemWriter によるチャンクステップ 1 つのジョブを作成します。
// JobParametersIncrementer に run.id を使用します。
func NewJavaJob(cfg *config.Config, repo job.JobRepository) (core.Job, error) {
	r, err := examplereader.NewExampleItemReader(cfg, repo, nil)
	if err != nil {
		return nil, err
	}
	w, err := examplewriter.NewExampleItemWriter(cfg, repo, nil)
	if err != nil {
		return nil, err
	}

	step1 := step.NewChunkStep[any, any](
		"step1",
		r,
		nil,
		w,
		cfg.Batch.ChunkSize,
		repo,
		[]core.StepExecutionListener{steplistener.NewLoggingStepListener()},
		[]core.ChunkListener{steplistener.NewLoggingChunkListener()},
		nil,
	)

	flow := core.NewFlowDefinition(step1.ID())
	if err := flow.AddElement(step1.ID(), step1); err != nil {
		return nil, exception.NewBatchError("java_job", "javaJob のフロー構築に失敗しました", err, false, false)
	}
	flow.AddTransitionRule(step1.ID(), core.Transition{On: "FAILED", Fail: true})
	flow.AddTransitionRule(step1.ID(), core.Transition{On: "*", End: true})
	if err := flow.Validate(); err != nil {
		return nil, exception.NewBatchError("java_job", "javaJob のフローが不正です", err, false, false)
	}

	javaJob := runner.NewFlowJob(JavaJobName, flow, repo, []core.JobExecutionListener{joblistener.NewLoggingJobListener()})
	javaJob.SetIncrementer(incrementer.NewRunIDIncrementer(incrementer.DefaultRunIDKey))
	return javaJob, nil
}

// RegisterJavaJob は javaJob を同期起動のジョブとして登録します。
func RegisterJavaJob(f *factory.JobFactory) error {
	f.RegisterJobBuilder(JavaJobName, NewJavaJob)
	f.SetLaunchMode(JavaJobName, factory.LaunchModeSync)
	return nil
}
