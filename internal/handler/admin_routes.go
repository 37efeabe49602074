package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"route-gateway/internal/errors"
	"route-gateway/internal/routing"
)

// 管理用エンドポイントに必要なスコープ
const (
	ScopeRoutesRead  = "routes:read"
	ScopeRoutesWrite = "routes:write"
)

// RouteAdmin は管理用エンドポイントが操作するルートテーブル
type RouteAdmin interface {
	Routes() []*routing.Route
	Refresh(ctx context.Context) error
}

// AdminRoutesConfig はAdminRoutesHandlerの設定
type AdminRoutesConfig struct {
	Locator RouteAdmin
	// Authenticate はトークンを検証するラッパー
	Authenticate func(http.Handler) http.Handler
	// Authorize はスコープを検証するラッパー
	Authorize func(scope string, next http.Handler) http.Handler
	Logger    *slog.Logger
}

// AdminRoutesHandler はルートテーブルの参照と再読み込みを提供する
type AdminRoutesHandler struct {
	locator      RouteAdmin
	authenticate func(http.Handler) http.Handler
	authorize    func(scope string, next http.Handler) http.Handler
	logger       *slog.Logger
}

// RouteView は管理APIが返すルートの表現
type RouteView struct {
	ID          string   `json:"id"`
	Path        string   `json:"path"`
	Methods     []string `json:"methods,omitempty"`
	Backend     string   `json:"backend"`
	Timeout     string   `json:"timeout,omitempty"`
	StripPrefix bool     `json:"strip_prefix"`
	Retryable   *bool    `json:"retryable,omitempty"`
	Middleware  []string `json:"middleware,omitempty"`
}

// NewAdminRoutesHandler は新しいAdminRoutesHandlerを作成する
func NewAdminRoutesHandler(config AdminRoutesConfig) *AdminRoutesHandler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Authenticate == nil {
		config.Authenticate = func(next http.Handler) http.Handler { return next }
	}
	if config.Authorize == nil {
		config.Authorize = func(_ string, next http.Handler) http.Handler { return next }
	}

	return &AdminRoutesHandler{
		locator:      config.Locator,
		authenticate: config.Authenticate,
		authorize:    config.Authorize,
		logger:       config.Logger,
	}
}

// Register は prefix 配下に管理用エンドポイントを登録する
func (h *AdminRoutesHandler) Register(mux *http.ServeMux, prefix string) {
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	mux.Handle("GET "+prefix+"/routes",
		h.authenticate(h.authorize(ScopeRoutesRead, http.HandlerFunc(h.listRoutes))))
	mux.Handle("POST "+prefix+"/routes/refresh",
		h.authenticate(h.authorize(ScopeRoutesWrite, http.HandlerFunc(h.refreshRoutes))))
}

func (h *AdminRoutesHandler) listRoutes(w http.ResponseWriter, _ *http.Request) {
	routes := h.locator.Routes()

	views := make([]RouteView, 0, len(routes))
	for _, r := range routes {
		views = append(views, toRouteView(r))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(views),
		"routes": views,
	})
}

func (h *AdminRoutesHandler) refreshRoutes(w http.ResponseWriter, req *http.Request) {
	if err := h.locator.Refresh(req.Context()); err != nil {
		h.logger.Error("failed to refresh routes", slog.String("error", err.Error()))
		errors.Write(w, errors.NewErrorWithDetails(http.StatusUnprocessableEntity, "REFRESH_FAILED",
			"failed to refresh routes", map[string]any{"reason": err.Error()}))
		return
	}

	h.logger.Info("routes refreshed by admin")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(h.locator.Routes()),
	})
}

func toRouteView(r *routing.Route) RouteView {
	v := RouteView{
		ID:          r.ID,
		Path:        r.Path,
		Methods:     r.Methods,
		Backend:     r.Backend.URL.String(),
		StripPrefix: r.StripPrefix,
		Retryable:   r.Retryable,
	}
	if r.Backend.Timeout > 0 {
		v.Timeout = r.Backend.Timeout.String()
	}
	for _, m := range r.Middleware {
		v.Middleware = append(v.Middleware, m.Type)
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
