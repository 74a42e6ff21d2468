package core

import (
	"fmt"
	"path"
)

// Transition はステップまたは Decision から次の要素への遷移ルールを定義します。
// On は ExitStatus に対するパターンで、"*" と "?" のワイルドカードを使えます。
type Transition struct {
	On   string `yaml:"on"`
	To   string `yaml:"to,omitempty"`
	End  bool   `yaml:"end,omitempty"`
	Fail bool   `yaml:"fail,omitempty"`
	Stop bool   `yaml:"stop,omitempty"`
}

// Matches は ExitStatus が On パターンに一致するかどうかを返します。
func (t Transition) Matches(status ExitStatus) bool {
	if t.On == "" || t.On == "*" {
		return true
	}
	ok, err := path.Match(t.On, string(status))
	return err == nil && ok
}

// TransitionRule は特定の遷移元要素からの単一の遷移ルールです。
type TransitionRule struct {
	From       string
	Transition Transition
}

// FlowDefinition はジョブの実行フロー全体を定義します。
type FlowDefinition struct {
	StartElement    string
	Elements        map[string]FlowElement
	Order           []string
	TransitionRules []TransitionRule
}

// NewFlowDefinition は新しい FlowDefinition を作成します。
func NewFlowDefinition(startElement string) *FlowDefinition {
	return &FlowDefinition{
		StartElement: startElement,
		Elements:     make(map[string]FlowElement),
	}
}

// AddElement はフロー要素を登録します。登録順は Order に保持されます。
func (f *FlowDefinition) AddElement(id string, element FlowElement) error {
	if _, exists := f.Elements[id]; exists {
		return fmt.Errorf("フロー要素 '%s' は既に登録されています", id)
	}
	f.Elements[id] = element
	f.Order = append(f.Order, id)
	return nil
}

// AddTransitionRule は遷移ルールを追加します。
func (f *FlowDefinition) AddTransitionRule(from string, transition Transition) {
	f.TransitionRules = append(f.TransitionRules, TransitionRule{From: from, Transition: transition})
}

// GetElement は ID でフロー要素を取得します。
func (f *FlowDefinition) GetElement(id string) (FlowElement, bool) {
	e, ok := f.Elements[id]
	return e, ok
}

// FindTransition は from 要素の ExitStatus に一致する遷移を探します。
// 完全一致のパターンをワイルドカードより優先します。
func (f *FlowDefinition) FindTransition(from string, status ExitStatus) (Transition, bool) {
	var wildcard *Transition
	for i := range f.TransitionRules {
		rule := f.TransitionRules[i]
		if rule.From != from || !rule.Transition.Matches(status) {
			continue
		}
		if rule.Transition.On == string(status) {
			return rule.Transition, true
		}
		if wildcard == nil {
			wildcard = &f.TransitionRules[i].Transition
		}
	}
	if wildcard != nil {
		return *wildcard, true
	}
	return Transition{}, false
}

// Validate は開始要素と遷移先がすべて存在するかを検証します。
func (f *FlowDefinition) Validate() error {
	if f.StartElement == "" {
		return fmt.Errorf("フローの開始要素が指定されていません")
	}
	if _, ok := f.Elements[f.StartElement]; !ok {
		return fmt.Errorf("フローの開始要素 '%s' が見つかりません", f.StartElement)
	}
	for _, rule := range f.TransitionRules {
		if _, ok := f.Elements[rule.From]; !ok {
			return fmt.Errorf("遷移元 '%s' が見つかりません", rule.From)
		}
		t := rule.Transition
		if t.To != "" {
			if _, ok := f.Elements[t.To]; !ok {
				return fmt.Errorf("'%s' からの遷移先 '%s' が見つかりません", rule.From, t.To)
			}
		}
		if t.To == "" && !t.End && !t.Fail && !t.Stop {
			return fmt.Errorf("'%s' からの遷移 (on: '%s') に遷移先も終了指定もありません", rule.From, t.On)
		}
	}
	return nil
}
