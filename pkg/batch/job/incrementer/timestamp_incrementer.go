package incrementer

import (
	"fmt"
	"time"

	core "batchadmin/pkg/batch/job/core"
	logger "batchadmin/pkg/batch/util/logger"
)

// DefaultTimestampKey は TimestampIncrementer が既定で使用するパラメータ名です。
const DefaultTimestampKey = "timestamp"

// TimestampIncrementer はジョブパラメータに現在時刻 (DATE) を設定する JobParametersIncrementer の実装です。
type TimestampIncrementer struct {
	name string
	now  func() time.Time
}

// NewTimestampIncrementer は新しい TimestampIncrementer のインスタンスを作成します。name が空なら "timestamp" を使います。
func NewTimestampIncrementer(name string) *TimestampIncrementer {
	if name == "" {
		name = DefaultTimestampKey
	}
	return &TimestampIncrementer{name: name, now: time.Now}
}

// GetNext は params をコピーし、"timestamp" を現在時刻にして返します。
func (i *TimestampIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	nextParams := params.Copy()

	now := i.now().UTC()
	if current, ok := params.GetDate(i.name); ok && !now.After(current) {
		// 同一ミリ秒内の連続実行でも JobKey が変わるようにする
		now = current.Add(time.Millisecond)
	}
	nextParams.PutDate(i.name, now)
	logger.Debugf("JobParametersIncrementer '%s': '%s' を %s に設定しました。", i.name, i.name, now.Format(time.RFC3339Nano))
	return nextParams
}

// String は TimestampIncrementer の文字列表現を返します。
func (i *TimestampIncrementer) String() string {
	return fmt.Sprintf("TimestampIncrementer[name=%s]", i.name)
}

var _ core.JobParametersIncrementer = (*TimestampIncrementer)(nil)
