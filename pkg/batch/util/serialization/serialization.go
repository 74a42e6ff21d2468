package serialization

import (
	"encoding/json"
	"errors"

	core "batchadmin/pkg/batch/job/core"
	"batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

const module = "serialization"

// MarshalExecutionContext は ExecutionContext を JSON 文字列にシリアライズします。
func MarshalExecutionContext(ec core.ExecutionContext) (string, error) {
	if ec == nil {
		return "{}", nil
	}
	data, err := json.Marshal(ec)
	if err != nil {
		logger.Errorf("ExecutionContext のシリアライズに失敗しました: %v", err)
		return "", exception.NewBatchError(module, "ExecutionContext のシリアライズに失敗しました", err, false, false)
	}
	return string(data), nil
}

// UnmarshalExecutionContext は JSON 文字列を ExecutionContext にデシリアライズします。
// 空文字列と "null" は空の ExecutionContext になります。
func UnmarshalExecutionContext(data string) (core.ExecutionContext, error) {
	ec := core.NewExecutionContext()
	if data == "" || data == "null" {
		return ec, nil
	}
	if err := json.Unmarshal([]byte(data), &ec); err != nil {
		logger.Errorf("ExecutionContext のデシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "ExecutionContext のデシリアライズに失敗しました", err, false, false)
	}
	return ec, nil
}

// MarshalFailures は []error をエラーメッセージの JSON 配列にシリアライズします。
func MarshalFailures(failures []error) (string, error) {
	msgs := make([]string, 0, len(failures))
	for _, err := range failures {
		if err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return "", exception.NewBatchError(module, "Failures のシリアライズに失敗しました", err, false, false)
	}
	return string(data), nil
}

// UnmarshalFailures は JSON 配列を []error に戻します。元のエラー型は復元されません。
func UnmarshalFailures(data string) ([]error, error) {
	if data == "" || data == "null" {
		return []error{}, nil
	}
	var msgs []string
	if err := json.Unmarshal([]byte(data), &msgs); err != nil {
		logger.Errorf("Failures のデシリアライズに失敗しました: %v", err)
		return nil, exception.NewBatchError(module, "Failures のデシリアライズに失敗しました", err, false, false)
	}
	failures := make([]error, len(msgs))
	for i, msg := range msgs {
		failures[i] = errors.New(msg)
	}
	return failures, nil
}
