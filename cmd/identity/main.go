// 認証基盤サービスのエントリポイント。
// アカウントの登録・ログイン・パスワード変更とトークンの発行を行い、
// gatewayからの失効チェックに応答する。
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/nao1215/restaurant/internal/identity"
	"github.com/nao1215/restaurant/pkg/config"
	"github.com/nao1215/restaurant/pkg/logger"
)

func main() {
	flags, err := config.ParseFlags("identity", os.Args[1:])
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
	logger.Setup("identity")

	cfg, err := identity.LoadConfig()
	if err != nil {
		slog.Error("設定の読み込みに失敗", "error", err)
		os.Exit(1)
	}
	cfg.Port = flags.PortOr(cfg.Port)

	server, err := identity.NewServer(context.Background(), cfg)
	if err != nil {
		slog.Error("認証基盤サーバーの初期化に失敗", "error", err)
		os.Exit(1)
	}
	defer server.Close()

	slog.Info("認証基盤サービスを起動します", "port", cfg.Port, "token_ttl", cfg.JWTTTL)
	if err := server.Run(); err != nil {
		slog.Error("認証基盤サービスの起動に失敗", "error", err)
		os.Exit(1)
	}
}
