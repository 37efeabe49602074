// Package logger はゲートウェイ全体で使う slog ロガーを構築する
package logger

import (
	"io"
	"log/slog"
	"os"
)

// LogLevel はログレベルを表す型
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ログの出力形式
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Config はロガーの設定
type Config struct {
	Level  LogLevel
	Format string // "json" or "text"
	// Output はログの出力先。nil の場合は標準出力
	Output io.Writer
	// Service は全てのログに付与するサービス名
	Service string
}

// New は新しいロガーを作成する
// debug レベルでは呼び出し元のソース位置も出力する
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With(slog.String("service", cfg.Service))
	}
	return logger
}

// Component は component 属性を付与した子ロガーを返す
func Component(logger *slog.Logger, name string) *slog.Logger {
	return logger.With(slog.String("component", name))
}

func parseLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
