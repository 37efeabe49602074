package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	gwerrors "route-gateway/internal/errors"
)

// RecoveryConfig はリカバリーの設定
type RecoveryConfig struct {
	// EnableStackTrace はスタックトレースをログに出力するか
	EnableStackTrace bool
}

// Recovery はハンドラ内のパニックから回復し、500エラーを返す
type Recovery struct {
	logger *slog.Logger
	config RecoveryConfig
}

// NewRecovery は新しいRecoveryを作成する
func NewRecovery(logger *slog.Logger, config RecoveryConfig) *Recovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recovery{
		logger: logger,
		config: config,
	}
}

// Wrap は next をパニックから保護する
// http.ErrAbortHandler はレスポンスを中断するためのものなので再送出する
func (m *Recovery) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(r)
			}

			requestID, _ := GetRequestID(req.Context())
			attrs := []any{
				slog.String("request_id", requestID),
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Any("panic", r),
			}
			if m.config.EnableStackTrace {
				attrs = append(attrs, slog.String("stack", string(debug.Stack())))
			}
			m.logger.Error("panic recovered", attrs...)

			gwerrors.Write(w, gwerrors.NewInternalServerError(fmt.Sprintf("panic recovered: %v", r)))
		}()

		next.ServeHTTP(w, req)
	})
}
