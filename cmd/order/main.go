// 注文サービスのエントリポイント。
// テーブルと注文を管理し、注文明細の価格はメニューサービスから取得する。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nao1215/restaurant/internal/order"
	"github.com/nao1215/restaurant/pkg/config"
	"github.com/nao1215/restaurant/pkg/logger"
)

func main() {
	flags, err := config.ParseFlags("order", os.Args[1:])
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
	logger.Setup("order")

	cfg, err := order.LoadConfig()
	if err != nil {
		slog.Error("設定の読み込みに失敗", "error", err)
		os.Exit(1)
	}
	cfg.Port = flags.PortOr(cfg.Port)

	server, err := order.NewServer(context.Background(), cfg)
	if err != nil {
		slog.Error("注文サーバーの初期化に失敗", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	slog.Info("注文サービスを起動します", "port", cfg.Port, "menu", cfg.MenuURL)
	if err := server.Run(); err != nil {
		slog.Error("注文サービスの起動に失敗", "error", err)
		os.Exit(1)
	}
}
