// Package resources はサンプルアプリケーションの埋め込み設定と JSL を提供します。
package resources

import "embed"

// ApplicationYAML は既定のアプリケーション設定です。
//
//go:embed application.yaml
var ApplicationYAML []byte

// JobDefinitions は application.yaml の batch.job_definitions から参照される JSL ファイルです。
//
//go:embed jobs/*.yaml
var JobDefinitions embed.FS
