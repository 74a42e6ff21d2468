package core

import "strings"

// ExecutionContext はジョブやステップの状態を共有するためのキー-値ストアです。
// リポジトリには JSON で保存されるため、数値は復元後 float64 になります。
type ExecutionContext map[string]interface{}

// NewExecutionContext は新しい空の ExecutionContext を作成します。
func NewExecutionContext() ExecutionContext {
	return make(ExecutionContext)
}

// Put は指定されたキーと値を設定します。
func (ec ExecutionContext) Put(key string, value interface{}) {
	ec[key] = value
}

// Get は指定されたキーの値を取得します。
func (ec ExecutionContext) Get(key string) (interface{}, bool) {
	v, ok := ec[key]
	return v, ok
}

// GetString は値を文字列として取得します。
func (ec ExecutionContext) GetString(key string) (string, bool) {
	s, ok := ec[key].(string)
	return s, ok
}

// GetInt は値を int として取得します。JSON 由来の float64 も受け付けます。
func (ec ExecutionContext) GetInt(key string) (int, bool) {
	switch v := ec[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// GetBool は値を bool として取得します。
func (ec ExecutionContext) GetBool(key string) (bool, bool) {
	b, ok := ec[key].(bool)
	return b, ok
}

// GetNested は "a.b.c" 形式のドット区切りキーで入れ子の値を取得します。
func (ec ExecutionContext) GetNested(key string) (interface{}, bool) {
	if v, ok := ec[key]; ok {
		return v, true
	}
	parts := strings.Split(key, ".")
	var current interface{} = map[string]interface{}(ec)
	for _, part := range parts {
		m, ok := toMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func toMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case ExecutionContext:
		return m, true
	default:
		return nil, false
	}
}

// Copy は浅いコピーを返します。
func (ec ExecutionContext) Copy() ExecutionContext {
	cp := make(ExecutionContext, len(ec))
	for k, v := range ec {
		cp[k] = v
	}
	return cp
}

// Merge は other の内容で上書きします。
func (ec ExecutionContext) Merge(other ExecutionContext) {
	for k, v := range other {
		ec[k] = v
	}
}

// ExecutionContextPromotion はステップ終了時に StepExecutionContext から
// JobExecutionContext へ引き上げるキーの設定です。
type ExecutionContextPromotion struct {
	Keys []string
	// JobLevelKeys はステップ側のキーからジョブ側のキー名への対応です。未指定なら同じ名前を使います。
	JobLevelKeys map[string]string
}

// Promote は設定されたキーを from から to へコピーし、見つからなかったキーを返します。
func (p *ExecutionContextPromotion) Promote(from, to ExecutionContext) []string {
	if p == nil {
		return nil
	}
	var missing []string
	for _, key := range p.Keys {
		val, ok := from.GetNested(key)
		if !ok {
			missing = append(missing, key)
			continue
		}
		jobLevelKey := key
		if mapped, found := p.JobLevelKeys[key]; found && mapped != "" {
			jobLevelKey = mapped
		}
		to.Put(jobLevelKey, val)
	}
	return missing
}
