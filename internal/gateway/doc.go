// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// 外部からアクセス可能な唯一のサービスであり、セキュリティの境界線として
// 機能する。リクエストごとにBearerトークンの署名と有効期限を検証し、
// 認証基盤に失効チェックを問い合わせてから、信頼済みヘッダー
// （X-User-Email / X-User-Role）を付与して内部サービスに転送する。
//
// 認証基盤に到達できない場合はリクエストを拒否する（fail closed）。
package gateway
