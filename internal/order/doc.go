// Package order は注文サービスの内部実装を提供する。
//
// テーブルと注文を管理する。注文の所有者はgatewayが付与した
// X-User-Email で決まり、USERロールは自分の注文だけを参照できる。
// 注文明細の価格はメニューサービスから取得した時点の値を保存する。
package order
