// API Gatewayサービスのエントリポイント。
// すべてのリクエストのトークンを検証し、認証基盤に失効チェックを問い合わせてから
// 内部サービスに転送する。外部からアクセス可能な唯一のサービスであり、
// セキュリティの境界線となる。
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nao1215/restaurant/internal/gateway"
	"github.com/nao1215/restaurant/pkg/config"
	"github.com/nao1215/restaurant/pkg/logger"
)

func main() {
	flags, err := config.ParseFlags("gateway", os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		// pflagがエラーと使い方を出力済み
		os.Exit(2)
	}
	if err := config.LoadEnv(flags.EnvFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Setup("gateway")

	cfg, err := gateway.LoadConfig()
	if err != nil {
		slog.Error("設定の読み込みに失敗", "error", err)
		os.Exit(1)
	}
	cfg.Port = flags.PortOr(cfg.Port)

	server, err := gateway.NewServer(cfg)
	if err != nil {
		slog.Error("Gatewayサーバーの初期化に失敗", "error", err)
		os.Exit(1)
	}

	slog.Info("Gatewayサービスを起動します", "port", cfg.Port, "identity", cfg.IdentityURL, "routes", len(cfg.Routes))
	if err := server.Run(); err != nil {
		slog.Error("Gatewayサービスの起動に失敗", "error", err)
		os.Exit(1)
	}
}
