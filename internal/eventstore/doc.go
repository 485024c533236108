// Package eventstore はイベントストアサービスの内部実装を提供する。
//
// 認証基盤・メニュー・注文の各サービスが発行する監査イベントを
// 追記のみ（append-only）で永続化する。イベントは不変で、
// AggregateIDごとに1から始まる連番のバージョンが振られる。
//
// 主な機能:
//   - イベントの追記（Append）
//   - AggregateIDによるイベント取得（監査・状態確認用）
//   - イベントタイプによるイベント取得
//   - 日時指定によるイベント取得
//   - ADMIN向けの検索API（gateway経由）
package eventstore
