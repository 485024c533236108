// Package identity は認証基盤（identity authority）サービスの内部実装を提供する。
//
// アカウントの登録・ログイン・パスワード変更・ロール変更と、gatewayから
// リクエストごとに呼び出される失効チェックを担当する。トークンはサーバー側に
// 保存せず、パスワード変更時刻より前に発行されたトークンを失効扱いにする。
//
// 主な機能:
//   - 登録・ログイン・パスワード変更時のトークン発行
//   - 失効チェック（POST /internal/tokens/check）
//   - プロフィール取得とロール変更
package identity
