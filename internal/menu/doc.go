// Package menu はメニューサービスの内部実装を提供する。
//
// カテゴリとメニュー品目を管理する。参照は認証済みの全ロール、
// 作成・更新・削除はSUPERVISORとADMINに限られる。認可はgatewayが付与した
// 信頼済みヘッダー（X-User-Email / X-User-Role）だけで判定する。
package menu
