// Package event はサービス間で共有する監査イベントの型を定義する。
//
// 認証基盤・メニュー・注文の各サービスは状態変更をEventとして
// Event Storeに追記する。イベントは追記のみで、更新・削除はしない。
package event
