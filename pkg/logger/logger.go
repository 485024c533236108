// Package logger はサービス共通のslogロガーを構築する。
//
// 開発時は色付きの1行形式、本番はJSON形式で標準出力に書き出す。
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format はログの出力形式。
type Format string

const (
	// FormatPretty は色付きの人間向け形式。
	FormatPretty Format = "pretty"
	// FormatJSON は slog.JSONHandler による構造化形式。
	FormatJSON Format = "json"
)

// New は指定された形式とレベルでロガーを生成する。
// サービス名は全レコードに service 属性として付与する。
func New(w io.Writer, service string, format Format, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch format {
	case FormatJSON:
		h = slog.NewJSONHandler(w, opts)
	default:
		h = NewPrettyHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}

// ParseFormat はLOG_FORMATの値を解釈する。未知の値は FormatPretty になる。
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), string(FormatJSON)) {
		return FormatJSON
	}
	return FormatPretty
}

// ParseLevel はLOG_LEVELの値を解釈する。未知の値は Info になる。
func ParseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Setup はLOG_FORMATとLOG_LEVELに従って標準出力へのロガーを生成し、
// slogのデフォルトロガーに設定する。
func Setup(service string) *slog.Logger {
	l := New(os.Stdout, service, ParseFormat(os.Getenv("LOG_FORMAT")), ParseLevel(os.Getenv("LOG_LEVEL")))
	slog.SetDefault(l)
	return l
}
