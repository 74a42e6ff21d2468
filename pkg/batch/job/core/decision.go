package core

import (
	"context"
	"fmt"

	logger "batchadmin/pkg/batch/util/logger"
)

// ConditionalDecision は JobExecutionContext またはジョブパラメータの値で ExitStatus を決めます。
//
// プロパティ:
//
//	conditionKey   参照するキー (ExecutionContext はドット区切りの入れ子キー可)
//	expectedValue  一致すれば COMPLETED
//	defaultStatus  不一致・キー無しの場合の ExitStatus (既定は FAILED)
type ConditionalDecision struct {
	id            string
	conditionKey  string
	expectedValue string
	defaultStatus ExitStatus
}

// NewConditionalDecision は新しい ConditionalDecision を作成します。
func NewConditionalDecision(id string) *ConditionalDecision {
	return &ConditionalDecision{
		id:            id,
		defaultStatus: ExitStatusFailed,
	}
}

// SetProperties は JSL から注入されるプロパティを設定します。
func (d *ConditionalDecision) SetProperties(properties map[string]string) {
	if key, ok := properties["conditionKey"]; ok {
		d.conditionKey = key
	}
	if val, ok := properties["expectedValue"]; ok {
		d.expectedValue = val
	}
	if status, ok := properties["defaultStatus"]; ok && status != "" {
		d.defaultStatus = ExitStatus(status)
	}
}

// Decide は値を比較して ExitStatus を返します。
// JobExecutionContext を先に参照し、無ければジョブパラメータを参照します。
func (d *ConditionalDecision) Decide(ctx context.Context, jobExecution *JobExecution, jobParameters JobParameters) (ExitStatus, error) {
	if d.conditionKey == "" {
		logger.Warnf("Decision '%s': conditionKey が設定されていません。'%s' を返します。", d.id, d.defaultStatus)
		return d.defaultStatus, nil
	}

	var actual string
	if v, ok := jobExecution.ExecutionContext.GetNested(d.conditionKey); ok {
		actual = fmt.Sprintf("%v", v)
	} else if s, ok := jobParameters.GetString(d.conditionKey); ok {
		actual = s
	} else {
		logger.Debugf("Decision '%s': キー '%s' が見つかりません。'%s' を返します。", d.id, d.conditionKey, d.defaultStatus)
		return d.defaultStatus, nil
	}

	if actual == d.expectedValue {
		return ExitStatusCompleted, nil
	}
	logger.Debugf("Decision '%s': '%s' != '%s'。'%s' を返します。", d.id, actual, d.expectedValue, d.defaultStatus)
	return d.defaultStatus, nil
}

// DecisionName は Decision の名前を返します。
func (d *ConditionalDecision) DecisionName() string {
	return d.id
}

// ID は Decision の ID を返します。
func (d *ConditionalDecision) ID() string {
	return d.id
}

var _ Decision = (*ConditionalDecision)(nil)
