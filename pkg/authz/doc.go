// Package authz はgatewayが付与した信頼済みヘッダーに基づくロール認可を提供する。
//
// 下流サービスはトークンを直接見ることはなく、X-User-Role ヘッダーの値と
// 許可ロールを Require で照合する。
package authz
