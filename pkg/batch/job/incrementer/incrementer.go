package incrementer

import (
	"fmt"
	"strings"

	core "batchadmin/pkg/batch/job/core"
)

// New は JSL の incrementer 名から JobParametersIncrementer を作成します。
// 空文字は「incrementer なし」として nil を返します。
func New(kind string) (core.JobParametersIncrementer, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "":
		return nil, nil
	case "run-id", "runid", "run.id":
		return NewRunIDIncrementer(DefaultRunIDKey), nil
	case "timestamp":
		return NewTimestampIncrementer(DefaultTimestampKey), nil
	default:
		return nil, fmt.Errorf("不明な incrementer '%s' です (run-id, timestamp のいずれかを指定してください)", kind)
	}
}
