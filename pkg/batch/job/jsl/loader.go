package jsl

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"batchadmin/pkg/batch/job/incrementer"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// LoadJSLDefinitionFromBytes は単一の JSL YAML のバイトデータからジョブ定義を読み込み、検証します。
// アプリケーション側で埋め込まれた JSL ファイルを読み込むために使用します。
func LoadJSLDefinitionFromBytes(data []byte) (Job, error) {
	var jobDef Job
	if err := yaml.Unmarshal(data, &jobDef); err != nil {
		return Job{}, exception.NewBatchError("jsl_loader", "JSL ファイルのパースに失敗しました", err, false, false)
	}
	if err := Validate(jobDef); err != nil {
		return Job{}, err
	}
	logger.Infof("JSL ジョブ '%s' をロードしました。要素数: %d", jobDef.ID, len(jobDef.Flow.Elements))
	return jobDef, nil
}

// Validate はジョブ定義の構造を検証します。コンポーネント参照の解決は行いません。
func Validate(jobDef Job) error {
	fail := func(format string, args ...interface{}) error {
		return exception.NewBatchError("jsl_loader", fmt.Sprintf(format, args...), nil, false, false)
	}

	if jobDef.ID == "" {
		return fail("JSL ファイルに 'id' が定義されていません")
	}
	if jobDef.Name == "" {
		return fail("JSL ジョブ '%s' に 'name' が定義されていません", jobDef.ID)
	}
	switch strings.ToLower(jobDef.Launch) {
	case "", "sync", "async":
	default:
		return fail("JSL ジョブ '%s' の 'launch' は sync または async である必要があります: %s", jobDef.ID, jobDef.Launch)
	}
	if _, err := incrementer.New(jobDef.Incrementer); err != nil {
		return exception.NewBatchError("jsl_loader", fmt.Sprintf("JSL ジョブ '%s' の 'incrementer' が不正です", jobDef.ID), err, false, false)
	}
	if jobDef.Flow.StartElement == "" {
		return fail("JSL ジョブ '%s' のフローに 'start-element' が定義されていません", jobDef.ID)
	}
	if len(jobDef.Flow.Elements) == 0 {
		return fail("JSL ジョブ '%s' のフローに 'elements' が定義されていません", jobDef.ID)
	}
	if _, ok := jobDef.Flow.Elements.Get(jobDef.Flow.StartElement); !ok {
		return fail("JSL ジョブ '%s': 'start-element' '%s' が 'elements' に見つかりません", jobDef.ID, jobDef.Flow.StartElement)
	}

	seen := make(map[string]bool, len(jobDef.Flow.Elements))
	for _, el := range jobDef.Flow.Elements {
		if seen[el.ID] {
			return fail("JSL ジョブ '%s': フロー要素 '%s' が重複しています", jobDef.ID, el.ID)
		}
		seen[el.ID] = true

		var transitions []Transition
		switch {
		case el.Step != nil:
			s := el.Step
			if (s.Tasklet == nil) == (s.Chunk == nil) {
				return fail("JSL ジョブ '%s': ステップ '%s' には 'tasklet' と 'chunk' のどちらか一方が必要です", jobDef.ID, el.ID)
			}
			if s.Tasklet != nil && s.Tasklet.Ref == "" {
				return fail("JSL ジョブ '%s': ステップ '%s' の 'tasklet' に 'ref' がありません", jobDef.ID, el.ID)
			}
			if s.Chunk != nil {
				if s.Chunk.Reader.Ref == "" || s.Chunk.Writer.Ref == "" {
					return fail("JSL ジョブ '%s': チャンクステップ '%s' には 'reader' と 'writer' が必要です", jobDef.ID, el.ID)
				}
				if s.Chunk.ItemCount < 0 {
					return fail("JSL ジョブ '%s': チャンクステップ '%s' の 'item-count' が負の値です", jobDef.ID, el.ID)
				}
			}
			transitions = s.Transitions
		case el.Decision != nil:
			if el.Decision.Decider.Ref == "" {
				return fail("JSL ジョブ '%s': Decision '%s' の 'decider' に 'ref' がありません", jobDef.ID, el.ID)
			}
			transitions = el.Decision.Transitions
		}

		for _, t := range transitions {
			if t.To == "" && !t.End && !t.Fail && !t.Stop {
				return fail("JSL ジョブ '%s': '%s' の遷移 (on: '%s') に 'to' も終了指定もありません", jobDef.ID, el.ID, t.On)
			}
		}
	}
	for _, el := range jobDef.Flow.Elements {
		for _, t := range elementTransitions(el) {
			if t.To != "" && !seen[t.To] {
				return fail("JSL ジョブ '%s': '%s' からの遷移先 '%s' が見つかりません", jobDef.ID, el.ID, t.To)
			}
		}
	}
	return nil
}

func elementTransitions(el Element) []Transition {
	switch {
	case el.Step != nil:
		return el.Step.Transitions
	case el.Decision != nil:
		return el.Decision.Transitions
	default:
		return nil
	}
}
