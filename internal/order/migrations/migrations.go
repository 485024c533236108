// Package migrations は注文サービスのスキーマを方言ごとに埋め込む。
package migrations

import "embed"

// FS はsqlite/ と postgres/ 配下のマイグレーションファイル。
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
