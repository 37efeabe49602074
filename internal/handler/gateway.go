package handler

import (
	"log/slog"
	"net/http"
	"time"

	"route-gateway/internal/errors"
	"route-gateway/internal/metrics"
	"route-gateway/internal/middleware"
	"route-gateway/internal/routing"
	"route-gateway/internal/transport"
)

// HeaderRouteID は転送先のルートIDをバックエンドに伝えるヘッダー
const HeaderRouteID = "X-Gateway-Route"

// RouteLocator はリクエストをルートに解決する
type RouteLocator interface {
	Match(method, path string) (*routing.MatchResult, error)
}

// Gateway はAPI Gatewayのメインハンドラ
type Gateway struct {
	locator           RouteLocator
	transporter       transport.Transporter
	middlewareFactory *middleware.Factory
	logger            *slog.Logger
	metrics           *metrics.Metrics
	handler           http.Handler
}

// GatewayOption はGatewayのオプション
type GatewayOption func(*Gateway)

// WithMetrics はリクエストの結果を m に記録する
func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// NewGateway は新しいGatewayを作成する
func NewGateway(locator RouteLocator, transporter transport.Transporter, middlewareFactory *middleware.Factory, logger *slog.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		locator:           locator,
		transporter:       transporter,
		middlewareFactory: middlewareFactory,
		logger:            logger,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.handler = middleware.NewRecovery(logger, middleware.RecoveryConfig{EnableStackTrace: true}).
		Wrap(http.HandlerFunc(g.serve))
	return g
}

// ServeHTTP はhttp.Handlerインターフェースの実装
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	g.handler.ServeHTTP(rec, r)

	g.metrics.ObserveRequest(rec.route, r.Method, rec.status, time.Since(start))
}

func (g *Gateway) serve(w http.ResponseWriter, r *http.Request) {
	rec, ok := w.(*statusRecorder)
	if !ok {
		rec = &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	}

	result, err := g.locator.Match(r.Method, r.URL.Path)
	if err != nil {
		g.handleError(rec, r, errors.WrapError(err, http.StatusNotFound, "ROUTING_ERROR"))
		return
	}

	spec := result.Spec
	rec.route = spec.ID
	g.logger.Debug("route matched",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.String("route_id", spec.ID),
		slog.String("target_path", spec.Path),
	)

	ctx := r.Context()
	if len(result.Route.Middleware) > 0 {
		if g.middlewareFactory == nil {
			g.handleError(rec, r, errors.NewInternalServerError("middleware factory is not configured"))
			return
		}

		chain, err := g.middlewareFactory.Build(result.Route.Middleware)
		if err != nil {
			g.handleError(rec, r, errors.WrapError(err, http.StatusInternalServerError, "MIDDLEWARE_SETUP_ERROR"))
			return
		}

		ctx, err = chain.Execute(ctx, r)
		if err != nil {
			g.handleError(rec, r, errors.WrapError(err, http.StatusUnauthorized, "MIDDLEWARE_ERROR"))
			return
		}
		r = r.WithContext(ctx)
	}

	backend := &transport.Backend{
		URL:     spec.Location,
		Path:    spec.Path,
		Prefix:  spec.Prefix,
		Timeout: result.Route.Backend.Timeout,
		Headers: map[string]string{HeaderRouteID: spec.ID},
	}

	if err := g.transporter.Transport(ctx, rec, r, backend); err != nil {
		g.handleError(rec, r, errors.WrapError(err, http.StatusBadGateway, "TRANSPORT_ERROR"))
		return
	}

	middleware.LogResponse(ctx, g.logger, rec.status, rec.written)
}

func (g *Gateway) handleError(w http.ResponseWriter, r *http.Request, err errors.GatewayError) {
	level := slog.LevelError
	if err.StatusCode() < http.StatusInternalServerError {
		level = slog.LevelWarn
	}

	g.logger.Log(r.Context(), level, "request failed",
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.String("error_code", err.ErrorCode()),
		slog.String("error", err.Error()),
	)

	errors.Write(w, err)
}

// statusRecorder はレスポンスのステータスコードと書き込みバイト数を記録する
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	route   string
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.written += int64(n)
	return n, err
}

// Unwrap は http.ResponseController がFlushなどを元のWriterに届けるために使う
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
