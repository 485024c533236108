// Package httpclient はサービス間のHTTP通信を行うクライアントを提供する。
//
// gatewayから認証基盤への失効チェック、各サービスからEvent Storeへの
// イベント送信など、サービス間の通信パターンを統一する。
package httpclient
