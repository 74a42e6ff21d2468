package component

import (
	"fmt"
	"sort"
	"sync"

	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/repository/job"
	exception "batchadmin/pkg/batch/util/exception"
	logger "batchadmin/pkg/batch/util/logger"
)

// ComponentBuilder は、特定のコンポーネント（Reader, Processor, Writer, Tasklet, リスナー, Decision）を生成するための関数型です。
// 依存関係 (config, repo, properties など) を受け取り、生成されたコンポーネントとエラーを返します。
// ジェネリックインターフェースを返すため、any を使用します。
type ComponentBuilder func(cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error)

// Registry は JSL から ref で参照されるコンポーネントのビルダーを保持します。
type Registry struct {
	mu       sync.RWMutex
	builders map[string]ComponentBuilder
}

// NewRegistry は空の Registry を作成します。
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]ComponentBuilder)}
}

// Register は name でビルダーを登録します。同名の登録は上書きされます。
func (r *Registry) Register(name string, builder ComponentBuilder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.builders[name]; exists {
		logger.Warnf("コンポーネントビルダー '%s' を上書き登録します。", name)
	}
	r.builders[name] = builder
	logger.Debugf("コンポーネントビルダー '%s' を登録しました。", name)
}

// Has は name のビルダーが登録されているかどうかを返します。
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.builders[name]
	return ok
}

// Names は登録済みのビルダー名をソートして返します。
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build は name のビルダーでコンポーネントを生成します。
func (r *Registry) Build(name string, cfg *config.Config, repo job.JobRepository, properties map[string]string) (any, error) {
	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, exception.NewBatchErrorf("component", "コンポーネント '%s' のビルダーが登録されていません", name)
	}
	if properties == nil {
		properties = map[string]string{}
	}
	c, err := builder(cfg, repo, properties)
	if err != nil {
		return nil, exception.NewBatchError("component", fmt.Sprintf("コンポーネント '%s' のビルドに失敗しました", name), err, false, false)
	}
	return c, nil
}
