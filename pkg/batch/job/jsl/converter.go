package jsl

import (
	"fmt"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/job/component"
	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/repository/job"
	"batchadmin/pkg/batch/step"
	"batchadmin/pkg/batch/step/processor"
	"batchadmin/pkg/batch/step/reader"
	"batchadmin/pkg/batch/step/writer"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// ConditionalDeciderRef は組み込みの ConditionalDecision を表す decider の ref です。
// 同名のビルダーが Registry に登録されている場合はそちらが優先されます。
const ConditionalDeciderRef = "conditional"

// Converter は JSL のジョブ定義を core の FlowDefinition に変換します。
type Converter struct {
	registry *component.Registry
	cfg      *config.Config
	repo     job.JobRepository
}

// NewConverter は新しい Converter を作成します。
func NewConverter(registry *component.Registry, cfg *config.Config, repo job.JobRepository) *Converter {
	return &Converter{registry: registry, cfg: cfg, repo: repo}
}

// ConvertJSLToCoreFlow はジョブ定義からフローとジョブレベルのリスナーを構築します。
// 呼び出すたびにコンポーネントを新しく生成するため、ジョブの起動ごとに呼び出します。
func (c *Converter) ConvertJSLToCoreFlow(jobDef Job) (*core.FlowDefinition, []core.JobExecutionListener, error) {
	flow := core.NewFlowDefinition(jobDef.Flow.StartElement)

	for _, el := range jobDef.Flow.Elements {
		var (
			element     core.FlowElement
			transitions []Transition
			err         error
		)
		switch {
		case el.Step != nil:
			element, err = c.buildStep(el.ID, *el.Step)
			transitions = el.Step.Transitions
		case el.Decision != nil:
			element, err = c.buildDecision(el.ID, *el.Decision)
			transitions = el.Decision.Transitions
		default:
			err = fmt.Errorf("フロー要素 '%s' にはステップも Decision も定義されていません", el.ID)
		}
		if err != nil {
			return nil, nil, exception.NewBatchError("jsl_converter", fmt.Sprintf("JSL ジョブ '%s' の変換に失敗しました", jobDef.ID), err, false, false)
		}
		if err := flow.AddElement(el.ID, element); err != nil {
			return nil, nil, exception.NewBatchError("jsl_converter", err.Error(), err, false, false)
		}
		for _, t := range transitions {
			flow.AddTransitionRule(el.ID, core.Transition{On: t.On, To: t.To, End: t.End, Fail: t.Fail, Stop: t.Stop})
		}
	}
	if err := flow.Validate(); err != nil {
		return nil, nil, exception.NewBatchError("jsl_converter", fmt.Sprintf("JSL ジョブ '%s' のフローが不正です", jobDef.ID), err, false, false)
	}

	jobListeners := make([]core.JobExecutionListener, 0, len(jobDef.Listeners))
	for _, ref := range jobDef.Listeners {
		obj, err := c.build(ref)
		if err != nil {
			return nil, nil, err
		}
		l, ok := obj.(core.JobExecutionListener)
		if !ok {
			return nil, nil, exception.NewBatchErrorf("jsl_converter", "コンポーネント '%s' は JobExecutionListener を実装していません (%T)", ref.Ref, obj)
		}
		jobListeners = append(jobListeners, l)
	}

	logger.Debugf("JSL ジョブ '%s' をフローに変換しました。", jobDef.ID)
	return flow, jobListeners, nil
}

func (c *Converter) build(ref ComponentRef) (any, error) {
	return c.registry.Build(ref.Ref, c.cfg, c.repo, ref.Properties)
}

func (c *Converter) buildStep(id string, s Step) (core.Step, error) {
	stepListeners, chunkListeners, err := c.buildStepListeners(id, s.Listeners)
	if err != nil {
		return nil, err
	}
	var promotion *core.ExecutionContextPromotion
	if s.ExecutionContextPromotion != nil {
		promotion = &core.ExecutionContextPromotion{
			Keys:         s.ExecutionContextPromotion.Keys,
			JobLevelKeys: s.ExecutionContextPromotion.JobLevelKeys,
		}
	}

	if s.Tasklet != nil {
		obj, err := c.build(*s.Tasklet)
		if err != nil {
			return nil, err
		}
		tasklet, ok := obj.(core.Tasklet)
		if !ok {
			return nil, fmt.Errorf("ステップ '%s': コンポーネント '%s' は Tasklet を実装していません (%T)", id, s.Tasklet.Ref, obj)
		}
		return step.NewTaskletStep(id, tasklet, c.repo, stepListeners, promotion), nil
	}

	rObj, err := c.build(s.Chunk.Reader)
	if err != nil {
		return nil, err
	}
	r, ok := rObj.(reader.Reader[any])
	if !ok {
		return nil, fmt.Errorf("ステップ '%s': コンポーネント '%s' は Reader[any] を実装していません (%T)", id, s.Chunk.Reader.Ref, rObj)
	}

	var p processor.Processor[any, any]
	if s.Chunk.Processor != nil {
		pObj, err := c.build(*s.Chunk.Processor)
		if err != nil {
			return nil, err
		}
		if p, ok = pObj.(processor.Processor[any, any]); !ok {
			return nil, fmt.Errorf("ステップ '%s': コンポーネント '%s' は Processor[any, any] を実装していません (%T)", id, s.Chunk.Processor.Ref, pObj)
		}
	}

	wObj, err := c.build(s.Chunk.Writer)
	if err != nil {
		return nil, err
	}
	w, ok := wObj.(writer.Writer[any])
	if !ok {
		return nil, fmt.Errorf("ステップ '%s': コンポーネント '%s' は Writer[any] を実装していません (%T)", id, s.Chunk.Writer.Ref, wObj)
	}

	itemCount := s.Chunk.ItemCount
	if itemCount == 0 && c.cfg != nil {
		itemCount = c.cfg.Batch.ChunkSize
	}
	return step.NewChunkStep[any, any](id, r, p, w, itemCount, c.repo, stepListeners, chunkListeners, promotion), nil
}

// buildStepListeners はステップのリスナーを生成し、実装しているインターフェースごとに振り分けます。
func (c *Converter) buildStepListeners(id string, refs []ComponentRef) ([]core.StepExecutionListener, []core.ChunkListener, error) {
	var (
		stepListeners  []core.StepExecutionListener
		chunkListeners []core.ChunkListener
	)
	for _, ref := range refs {
		obj, err := c.build(ref)
		if err != nil {
			return nil, nil, err
		}
		matched := false
		if l, ok := obj.(core.StepExecutionListener); ok {
			stepListeners = append(stepListeners, l)
			matched = true
		}
		if l, ok := obj.(core.ChunkListener); ok {
			chunkListeners = append(chunkListeners, l)
			matched = true
		}
		if !matched {
			return nil, nil, fmt.Errorf("ステップ '%s': コンポーネント '%s' はステップのリスナーではありません (%T)", id, ref.Ref, obj)
		}
	}
	return stepListeners, chunkListeners, nil
}

func (c *Converter) buildDecision(id string, d Decision) (core.Decision, error) {
	if d.Decider.Ref == ConditionalDeciderRef && !c.registry.Has(ConditionalDeciderRef) {
		decision := core.NewConditionalDecision(id)
		decision.SetProperties(d.Decider.Properties)
		return decision, nil
	}
	obj, err := c.build(d.Decider)
	if err != nil {
		return nil, err
	}
	decision, ok := obj.(core.Decision)
	if !ok {
		return nil, fmt.Errorf("Decision '%s': コンポーネント '%s' は Decision を実装していません (%T)", id, d.Decider.Ref, obj)
	}
	return decision, nil
}
