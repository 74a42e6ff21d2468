package incrementer

import (
	"fmt"

	core "batchadmin/pkg/batch/job/core"
	logger "batchadmin/pkg/batch/util/logger"
)

// DefaultRunIDKey は RunIDIncrementer が既定で使用するパラメータ名です。
const DefaultRunIDKey = "run.id"

// RunIDIncrementer はジョブパラメータの "run.id" (LONG) を追加またはインクリメントする JobParametersIncrementer の実装です。
// "run.id" が存在しない場合は 1 を設定し、存在する場合はその値に 1 を加えます。
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer は新しい RunIDIncrementer のインスタンスを作成します。name が空なら "run.id" を使います。
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// GetNext は params をコピーし、"run.id" を次の値にして返します。
func (i *RunIDIncrementer) GetNext(params core.JobParameters) core.JobParameters {
	nextParams := params.Copy()

	currentRunID, ok := params.GetLong(i.name)
	if !ok {
		nextParams.PutLong(i.name, 1)
		logger.Debugf("JobParametersIncrementer '%s': '%s' が見つからないため、1 を設定しました。", i.name, i.name)
		return nextParams
	}
	nextParams.PutLong(i.name, currentRunID+1)
	logger.Debugf("JobParametersIncrementer '%s': '%s' を %d から %d にインクリメントしました。", i.name, i.name, currentRunID, currentRunID+1)
	return nextParams
}

// String は RunIDIncrementer の文字列表現を返します。
func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

var _ core.JobParametersIncrementer = (*RunIDIncrementer)(nil)
