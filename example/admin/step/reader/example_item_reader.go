package reader

import (
	"batchadmin/pkg/batch/config"
	"batchadmin/pkg/batch/repository/job"
	itemreader "batchadmin/pkg/batch/step/reader"
)

// ExampleItemReader は固定の "Hello world!" を 1 件だけ返す Reader です。
type ExampleItemReader struct {
	*itemreader.ListReader[any]
}

// NewExampleItemReader は新しい ExampleItemReader を作成します。
// properties の message で返す文字列を変更できます。
func NewExampleItemReader(cfg *config.Config, repo job.JobRepository, properties map[string]string) (*ExampleItemReader, error) {
	message := "Hello world!"
	if m, ok := properties["message"]; ok && m != "" {
		message = m
	}
	return &ExampleItemReader{
		ListReader: itemreader.NewListReader[any]("exampleItemReader", []any{message}),
	}, nil
}

var _ itemreader.Reader[any] = (*ExampleItemReader)(nil)
