// Package database はDATABASE_URLからSQLiteまたはPostgreSQLへの接続を開く。
//
// 各サービスのストアは database/sql のみに依存し、方言の差は
// Dialect によってマイグレーションディレクトリを切り替えることで吸収する。
// SQLは両方言で `$1` 形式のプレースホルダーを使う。
package database
