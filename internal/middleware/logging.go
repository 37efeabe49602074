package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
)

// HeaderRequestID はリクエストIDを伝搬するヘッダー
const HeaderRequestID = "X-Request-ID"

// LoggingConfig はログミドルウェアの設定
type LoggingConfig struct {
	// SkipPaths はログ記録をスキップするパスのリスト
	SkipPaths []string
	// TrustRequestID はクライアントが送ったリクエストIDを引き継ぐか
	TrustRequestID bool
}

// LoggingMiddleware はアクセスログを記録し、リクエストIDをバックエンドに伝搬する
type LoggingMiddleware struct {
	logger *slog.Logger
	config LoggingConfig
}

// NewLoggingMiddleware は新しいログミドルウェアを作成する
func NewLoggingMiddleware(logger *slog.Logger, config LoggingConfig) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMiddleware{
		logger: logger,
		config: config,
	}
}

type loggingContextKey string

const (
	requestIDKey        loggingContextKey = "request_id"
	requestStartTimeKey loggingContextKey = "request_start_time"
)

// Process はリクエストIDを割り当ててアクセスログを記録する
func (m *LoggingMiddleware) Process(ctx context.Context, req *http.Request) (context.Context, error) {
	if slices.Contains(m.config.SkipPaths, req.URL.Path) {
		return ctx, nil
	}

	requestID := m.requestID(req)
	req.Header.Set(HeaderRequestID, requestID)

	ctx = context.WithValue(ctx, requestIDKey, requestID)
	ctx = context.WithValue(ctx, requestStartTimeKey, time.Now())

	attrs := []any{
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
		slog.String("path", req.URL.Path),
		slog.String("remote_addr", req.RemoteAddr),
		slog.String("user_agent", req.UserAgent()),
	}
	if req.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", req.URL.RawQuery))
	}
	m.logger.Info("incoming request", attrs...)

	return ctx, nil
}

// requestID はクライアントのリクエストIDがUUIDとして妥当ならそれを、そうでなければ新しいIDを返す
func (m *LoggingMiddleware) requestID(req *http.Request) string {
	if m.config.TrustRequestID {
		if id, err := uuid.Parse(req.Header.Get(HeaderRequestID)); err == nil {
			return id.String()
		}
	}
	return uuid.NewString()
}

// GetRequestID はコンテキストからリクエストIDを取得する
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(requestIDKey).(string)
	return requestID, ok
}

// GetRequestStartTime はコンテキストからリクエスト開始時刻を取得する
func GetRequestStartTime(ctx context.Context) (time.Time, bool) {
	startTime, ok := ctx.Value(requestStartTimeKey).(time.Time)
	return startTime, ok
}

// LogResponse はレスポンスをログに記録する
// ログミドルウェアを通っていないリクエストでは何もしない
func LogResponse(ctx context.Context, logger *slog.Logger, statusCode int, bytesWritten int64) {
	requestID, ok := GetRequestID(ctx)
	if !ok {
		return
	}

	attrs := []any{
		slog.String("request_id", requestID),
		slog.Int("status_code", statusCode),
		slog.Int64("bytes_written", bytesWritten),
	}
	if startTime, ok := GetRequestStartTime(ctx); ok {
		attrs = append(attrs, slog.Duration("duration", time.Since(startTime)))
	}

	logger.Info("response sent", attrs...)
}
