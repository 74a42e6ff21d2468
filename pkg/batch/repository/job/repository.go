package job

import (
	"batchadmin/pkg/batch/database"
)

// JobRepository はバッチ実行に関するメタデータを永続化・管理するためのインターフェースです。
type JobRepository interface {
	JobInstance
	JobExecution
	StepExecution

	// GetDBConnection はステップがチャンクのトランザクションを開始するための接続を返します。
	GetDBConnection() database.DBConnection

	// Close はリポジトリが使用するデータベース接続を解放します。
	Close() error
}
