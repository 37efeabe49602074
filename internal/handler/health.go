package handler

import (
	"context"
	"net/http"
	"time"

	"route-gateway/internal/routing"
)

// HealthChecker は依存先の健全性を確認する
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouteLister は登録済みのルートを返す
type RouteLister interface {
	Routes() []*routing.Route
}

// HealthHandler はゲートウェイの稼働状況を返す
// ルートが1件も登録されていない場合や依存先に接続できない場合は 503 を返す
type HealthHandler struct {
	routes   RouteLister
	checkers map[string]HealthChecker
	timeout  time.Duration
}

// NewHealthHandler は新しいHealthHandlerを作成する
func NewHealthHandler(routes RouteLister, checkers map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		routes:   routes,
		checkers: checkers,
		timeout:  2 * time.Second,
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Routes int               `json:"routes"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeHTTP はhttp.Handlerインターフェースの実装
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	status := http.StatusOK

	if h.routes != nil {
		resp.Routes = len(h.routes.Routes())
	}
	if resp.Routes == 0 {
		resp.Status = "no routes"
		status = http.StatusServiceUnavailable
	}

	if len(h.checkers) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checkers))
		for name, c := range h.checkers {
			if err := c.Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	writeJSON(w, status, resp)
}
