// Package token は共有鍵（HMAC-SHA256）で署名された自己完結型トークンの
// 発行と検証を提供する。
//
// トークンは subject（メールアドレス）・発行日時・有効期限だけを持ち、
// サーバー側には保存されない。パスワード変更による失効は、発行日時と
// IDのパスワード更新日時を認証基盤側で比較することで実現する。
package token
