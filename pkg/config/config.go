// Package config は各サービスの設定読み込みに共通する処理を提供する。
//
// 設定は環境変数から読む。.envファイルがあれば先に読み込み、
// 既に設定済みの環境変数は上書きしない。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Flags は全サービス共通のコマンドラインフラグ。
type Flags struct {
	// EnvFile は読み込む.envファイルのパス。
	EnvFile string
	// Port は環境変数PORTより優先されるリッスンポート。
	Port string
}

// ParseFlags はコマンドライン引数を解析する。
// --help が指定された場合は pflag.ErrHelp を返す。
func ParseFlags(name string, args []string) (Flags, error) {
	var f Flags
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&f.EnvFile, "env-file", ".env", "読み込む.envファイルのパス")
	flagSet.StringVarP(&f.Port, "port", "p", "", "リッスンポート（PORTより優先）")
	if err := flagSet.Parse(args); err != nil {
		return Flags{}, err
	}
	return f, nil
}

// PortOr はフラグでポートが指定されていればそれを、なければfallbackを返す。
func (f Flags) PortOr(fallback string) string {
	if f.Port != "" {
		return f.Port
	}
	return fallback
}

// LoadEnv は.envファイルを読み込む。ファイルが存在しない場合は何もしない。
func LoadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf(".envファイルの読み込みに失敗: %w", err)
	}
	return nil
}

// String は環境変数の値を返す。未設定または空白のみの場合はfallbackを返す。
func String(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// Int は環境変数を整数として返す。解析できない場合はfallbackを返す。
func Int(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// Duration は環境変数を time.Duration として返す。解析できない場合はfallbackを返す。
func Duration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return v
}

// CSV は環境変数をカンマ区切りのリストとして返す。未設定の場合はfallbackを返す。
func CSV(key string, fallback []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	return SplitCSV(raw)
}

// SplitCSV はカンマ区切りの文字列を分割し、空要素を除いて返す。
func SplitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
