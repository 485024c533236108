// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// gatewayが付与する信頼済みヘッダー（X-User-Email / X-User-Role）の取得と
// ロール認可、アクセスログ、パニックリカバリ、CORS、レート制限など、
// 全サービスで共通して使用するミドルウェアを含む。
package middleware
