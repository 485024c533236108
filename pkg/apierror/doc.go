// Package apierror は全サービス共通のエラー分類とHTTPレスポンスへの変換を提供する。
//
// 認証・認可の失敗はすべて *Error として明示的に返され、Respond によって
// {"code": ..., "error": ...} 形式のJSONに変換される。
package apierror
