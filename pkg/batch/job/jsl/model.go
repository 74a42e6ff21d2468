package jsl

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Job は JSL ファイルのトップレベルの構造です。
type Job struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	// Restartable は未指定なら true として扱います。
	Restartable *bool `yaml:"restartable,omitempty"`
	// Launch は "sync" または "async" です。未指定なら設定ファイルの batch.task_executor に従います。
	Launch string `yaml:"launch,omitempty"`
	// Incrementer は "run-id" または "timestamp" です。
	Incrementer string         `yaml:"incrementer,omitempty"`
	Listeners   []ComponentRef `yaml:"listeners,omitempty"`
	Flow        Flow           `yaml:"flow"`
}

// IsRestartable はリスタート可否を返します。
func (j Job) IsRestartable() bool {
	return j.Restartable == nil || *j.Restartable
}

// Flow はステップと Decision の並びです。
type Flow struct {
	StartElement string   `yaml:"start-element"`
	Elements     Elements `yaml:"elements"`
}

// Elements は YAML に書かれた順序を保ったフロー要素の一覧です。
type Elements []Element

// Element はフロー内の 1 要素で、Step か Decision のどちらか一方を持ちます。
type Element struct {
	ID       string
	Step     *Step
	Decision *Decision
}

// UnmarshalYAML は要素 ID をキーとするマッピングを、記述順を保って読み込みます。
func (e *Elements) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: 'elements' はマッピングである必要があります", node.Line)
	}
	elements := make(Elements, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		body := node.Content[i+1]

		var probe struct {
			Decider *ComponentRef `yaml:"decider"`
		}
		if err := body.Decode(&probe); err != nil {
			return fmt.Errorf("フロー要素 '%s': %w", id, err)
		}
		if probe.Decider != nil {
			var d Decision
			if err := body.Decode(&d); err != nil {
				return fmt.Errorf("Decision '%s': %w", id, err)
			}
			elements = append(elements, Element{ID: id, Decision: &d})
			continue
		}
		var s Step
		if err := body.Decode(&s); err != nil {
			return fmt.Errorf("ステップ '%s': %w", id, err)
		}
		elements = append(elements, Element{ID: id, Step: &s})
	}
	*e = elements
	return nil
}

// Get は ID で要素を探します。
func (e Elements) Get(id string) (Element, bool) {
	for _, el := range e {
		if el.ID == id {
			return el, true
		}
	}
	return Element{}, false
}

// Step はジョブ内の単一の処理単位です。Tasklet 指向かチャンク指向のいずれかです。
type Step struct {
	Description               string                     `yaml:"description,omitempty"`
	Tasklet                   *ComponentRef              `yaml:"tasklet,omitempty"`
	Chunk                     *Chunk                     `yaml:"chunk,omitempty"`
	Listeners                 []ComponentRef             `yaml:"listeners,omitempty"`
	ExecutionContextPromotion *ExecutionContextPromotion `yaml:"execution-context-promotion,omitempty"`
	Transitions               []Transition               `yaml:"transitions,omitempty"`
}

// Chunk はチャンク指向ステップの設定です。
type Chunk struct {
	Reader    ComponentRef  `yaml:"reader"`
	Processor *ComponentRef `yaml:"processor,omitempty"`
	Writer    ComponentRef  `yaml:"writer"`
	// ItemCount は 1 チャンクのアイテム数です。0 なら batch.chunk_size を使います。
	ItemCount int `yaml:"item-count,omitempty"`
}

// Decision はフロー内の条件分岐です。
type Decision struct {
	Description string       `yaml:"description,omitempty"`
	Decider     ComponentRef `yaml:"decider"`
	Transitions []Transition `yaml:"transitions,omitempty"`
}

// ComponentRef は登録済みのコンポーネントへの参照です。
type ComponentRef struct {
	Ref        string            `yaml:"ref"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// Transition は終了ステータスに応じた次の要素を定義します。
type Transition struct {
	On   string `yaml:"on"`
	To   string `yaml:"to,omitempty"`
	End  bool   `yaml:"end,omitempty"`
	Fail bool   `yaml:"fail,omitempty"`
	Stop bool   `yaml:"stop,omitempty"`
}

// ExecutionContextPromotion は StepExecutionContext から JobExecutionContext へのプロモーション設定です。
type ExecutionContextPromotion struct {
	Keys         []string          `yaml:"keys,omitempty"`
	JobLevelKeys map[string]string `yaml:"job-level-keys,omitempty"`
}
