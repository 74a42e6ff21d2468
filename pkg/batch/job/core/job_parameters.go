package core

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ParameterType は JobParameter の値の型です。
type ParameterType string

const (
	ParameterTypeString ParameterType = "STRING"
	ParameterTypeLong   ParameterType = "LONG"
	ParameterTypeDouble ParameterType = "DOUBLE"
	ParameterTypeDate   ParameterType = "DATE"
)

// JobParameter は型と識別フラグを持つ単一のパラメータです。
// Identifying なパラメータだけが JobInstance の同一性 (JobKey) に寄与します。
type JobParameter struct {
	Value       interface{}
	Type        ParameterType
	Identifying bool
}

// String は値の文字列表現を返します。
func (p JobParameter) String() string {
	switch v := p.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// JobParameters はジョブ実行時のパラメータを保持する構造体です。
type JobParameters struct {
	Params map[string]JobParameter
}

// NewJobParameters は空の JobParameters を作成します。
func NewJobParameters() JobParameters {
	return JobParameters{Params: make(map[string]JobParameter)}
}

func (p *JobParameters) ensure() {
	if p.Params == nil {
		p.Params = make(map[string]JobParameter)
	}
}

// Put は値の型を推定して識別パラメータとして設定します。
func (p *JobParameters) Put(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		p.PutString(key, v)
	case int:
		p.PutLong(key, int64(v))
	case int32:
		p.PutLong(key, int64(v))
	case int64:
		p.PutLong(key, v)
	case float32:
		p.PutDouble(key, float64(v))
	case float64:
		p.PutDouble(key, v)
	case time.Time:
		p.PutDate(key, v)
	case JobParameter:
		p.PutParameter(key, v)
	default:
		p.PutString(key, fmt.Sprint(v))
	}
}

// PutString は STRING パラメータを設定します。
func (p *JobParameters) PutString(key, value string) {
	p.PutParameter(key, JobParameter{Value: value, Type: ParameterTypeString, Identifying: true})
}

// PutLong は LONG パラメータを設定します。
func (p *JobParameters) PutLong(key string, value int64) {
	p.PutParameter(key, JobParameter{Value: value, Type: ParameterTypeLong, Identifying: true})
}

// PutDouble は DOUBLE パラメータを設定します。
func (p *JobParameters) PutDouble(key string, value float64) {
	p.PutParameter(key, JobParameter{Value: value, Type: ParameterTypeDouble, Identifying: true})
}

// PutDate は DATE パラメータを設定します。
func (p *JobParameters) PutDate(key string, value time.Time) {
	p.PutParameter(key, JobParameter{Value: value, Type: ParameterTypeDate, Identifying: true})
}

// PutParameter はパラメータをそのまま設定します。
func (p *JobParameters) PutParameter(key string, param JobParameter) {
	p.ensure()
	p.Params[key] = param
}

// Get はパラメータを取得します。
func (p JobParameters) Get(key string) (JobParameter, bool) {
	param, ok := p.Params[key]
	return param, ok
}

// GetString は値を文字列として取得します。STRING 以外の型は文字列表現を返します。
func (p JobParameters) GetString(key string) (string, bool) {
	param, ok := p.Params[key]
	if !ok {
		return "", false
	}
	return param.String(), true
}

// GetLong は値を int64 として取得します。数値文字列も受け付けます。
func (p JobParameters) GetLong(key string) (int64, bool) {
	param, ok := p.Params[key]
	if !ok {
		return 0, false
	}
	switch v := param.Value.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// GetDouble は値を float64 として取得します。
func (p JobParameters) GetDouble(key string) (float64, bool) {
	param, ok := p.Params[key]
	if !ok {
		return 0, false
	}
	switch v := param.Value.(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// GetDate は値を time.Time として取得します。RFC3339 と yyyy-MM-dd の文字列も受け付けます。
func (p JobParameters) GetDate(key string) (time.Time, bool) {
	param, ok := p.Params[key]
	if !ok {
		return time.Time{}, false
	}
	switch v := param.Value.(type) {
	case time.Time:
		return v, true
	case string:
		return parseDate(v)
	default:
		return time.Time{}, false
	}
}

// GetBool は "true" / "false" 文字列を bool として取得します。
func (p JobParameters) GetBool(key string) (bool, bool) {
	s, ok := p.GetString(key)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return b, err == nil
}

// Len はパラメータ数を返します。
func (p JobParameters) Len() int {
	return len(p.Params)
}

// IsEmpty はパラメータが空かどうかを返します。
func (p JobParameters) IsEmpty() bool {
	return len(p.Params) == 0
}

// Keys はソート済みのキー一覧を返します。
func (p JobParameters) Keys() []string {
	keys := make([]string, 0, len(p.Params))
	for k := range p.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy は独立したコピーを返します。
func (p JobParameters) Copy() JobParameters {
	cp := NewJobParameters()
	for k, v := range p.Params {
		cp.Params[k] = v
	}
	return cp
}

// Identifying は識別パラメータだけを含む JobParameters を返します。
func (p JobParameters) Identifying() JobParameters {
	cp := NewJobParameters()
	for k, v := range p.Params {
		if v.Identifying {
			cp.Params[k] = v
		}
	}
	return cp
}

// Equal は型と値、識別フラグがすべて一致するかどうかを返します。
func (p JobParameters) Equal(other JobParameters) bool {
	if len(p.Params) != len(other.Params) {
		return false
	}
	for k, v := range p.Params {
		o, ok := other.Params[k]
		if !ok || o.Type != v.Type || o.Identifying != v.Identifying || o.String() != v.String() {
			return false
		}
	}
	return true
}

// ToJobKey は識別パラメータを "key=value;" の形でキー順に連結した MD5 を返します。
func (p JobParameters) ToJobKey() string {
	var sb strings.Builder
	for _, k := range p.Keys() {
		param := p.Params[k]
		if !param.Identifying {
			continue
		}
		sb.WriteString(k)
		sb.WriteString("=")
		sb.WriteString(param.String())
		sb.WriteString(";")
	}
	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// String は "{key=value, ...}" 形式の文字列を返します。
func (p JobParameters) String() string {
	parts := make([]string, 0, len(p.Params))
	for _, k := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%s", k, p.Params[k].String()))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ParseJobParameter は "key=value" 形式の式をパースします。
//
//	name=foo          STRING
//	run.id(long)=5    LONG
//	rate(double)=0.5  DOUBLE
//	date(date)=2024-01-02
//	-name=foo         非識別パラメータ
func ParseJobParameter(expr string) (string, JobParameter, error) {
	idx := strings.Index(expr, "=")
	if idx <= 0 {
		return "", JobParameter{}, fmt.Errorf("パラメータ '%s' は key=value 形式ではありません", expr)
	}
	key, raw := strings.TrimSpace(expr[:idx]), expr[idx+1:]
	identifying := true
	if strings.HasPrefix(key, "-") {
		identifying = false
		key = key[1:]
	}
	typ := ParameterTypeString
	if open := strings.Index(key, "("); open > 0 && strings.HasSuffix(key, ")") {
		typ = ParameterType(strings.ToUpper(key[open+1 : len(key)-1]))
		key = key[:open]
	}
	if key == "" {
		return "", JobParameter{}, fmt.Errorf("パラメータ '%s' のキーが空です", expr)
	}

	param := JobParameter{Type: typ, Identifying: identifying}
	switch typ {
	case ParameterTypeString:
		param.Value = raw
	case ParameterTypeLong:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return "", JobParameter{}, fmt.Errorf("パラメータ '%s' の値を LONG に変換できません: %w", key, err)
		}
		param.Value = n
	case ParameterTypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return "", JobParameter{}, fmt.Errorf("パラメータ '%s' の値を DOUBLE に変換できません: %w", key, err)
		}
		param.Value = f
	case ParameterTypeDate:
		d, ok := parseDate(raw)
		if !ok {
			return "", JobParameter{}, fmt.Errorf("パラメータ '%s' の値 '%s' を DATE に変換できません", key, raw)
		}
		param.Value = d
	default:
		return "", JobParameter{}, fmt.Errorf("パラメータ '%s' の型 '%s' はサポートされていません", key, typ)
	}
	return key, param, nil
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
