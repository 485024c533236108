// メニューサービスのエントリポイント。
// カテゴリとメニュー品目を管理する。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nao1215/restaurant/internal/menu"
	"github.com/nao1215/restaurant/pkg/config"
	"github.com/nao1215/restaurant/pkg/logger"
)

func main() {
	flags, err := config.ParseFlags("menu", os.Args[1:])
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
	logger.Setup("menu")

	cfg, err := menu.LoadConfig()
	if err != nil {
		slog.Error("設定の読み込みに失敗", "error", err)
		os.Exit(1)
	}
	cfg.Port = flags.PortOr(cfg.Port)

	server, err := menu.NewServer(context.Background(), cfg)
	if err != nil {
		slog.Error("メニューサーバーの初期化に失敗", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	slog.Info("メニューサービスを起動します", "port", cfg.Port)
	if err := server.Run(); err != nil {
		slog.Error("メニューサービスの起動に失敗", "error", err)
		os.Exit(1)
	}
}
