package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	gwerrors "route-gateway/internal/errors"
)

// HeaderForwardedPrefix はゲートウェイが取り除いたプレフィックスを伝えるヘッダー
const HeaderForwardedPrefix = "X-Forwarded-Prefix"

// Transporter はバックエンドへのHTTPリクエスト転送を行う
type Transporter interface {
	// Transport はリクエストをバックエンドに転送する
	Transport(ctx context.Context, w http.ResponseWriter, req *http.Request, backend *Backend) error
}

// Backend は1リクエスト分の転送先
type Backend struct {
	// URL はバックエンドのベースURL
	URL *url.URL
	// Path はベースURLのパスに続けて転送するパス
	Path string
	// Prefix はゲートウェイが取り除いたプレフィックス（空なら送らない）
	Prefix string
	// Timeout はリクエストのタイムアウト
	Timeout time.Duration
	// Headers はバックエンドに追加するヘッダー
	Headers map[string]string
}

// HTTPTransporter はリバースプロキシで転送する
type HTTPTransporter struct {
	// RoundTripper はバックエンドへの接続に使う（nil の場合は http.DefaultTransport）
	RoundTripper http.RoundTripper
	// ErrorHandler はプロキシエラー時のハンドラ
	ErrorHandler func(w http.ResponseWriter, req *http.Request, err error)
}

// NewHTTPTransporter は新しいHTTPTransporterを作成する
func NewHTTPTransporter() *HTTPTransporter {
	return &HTTPTransporter{
		ErrorHandler: defaultErrorHandler,
	}
}

// Transport はリクエストをバックエンドに転送する
func (t *HTTPTransporter) Transport(ctx context.Context, w http.ResponseWriter, req *http.Request, backend *Backend) error {
	if backend == nil || backend.URL == nil {
		return gwerrors.NewBadGatewayError("invalid backend configuration")
	}

	if backend.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, backend.Timeout)
		defer cancel()
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			target := *backend.URL
			target.Path = joinPath(backend.URL.Path, backend.Path)
			target.RawPath = ""
			target.RawQuery = pr.In.URL.RawQuery

			pr.Out.URL = &target
			pr.Out.Host = backend.URL.Host
			pr.SetXForwarded()

			if backend.Prefix != "" {
				pr.Out.Header.Set(HeaderForwardedPrefix, backend.Prefix)
			}
			for key, value := range backend.Headers {
				pr.Out.Header.Set(key, value)
			}
		},
		Transport:    t.RoundTripper,
		ErrorHandler: t.ErrorHandler,
	}

	proxy.ServeHTTP(w, req.WithContext(ctx))
	return nil
}

// joinPath はベースパスと転送パスをスラッシュが重複しないように連結する
func joinPath(base, path string) string {
	switch {
	case base == "" || base == "/":
		if path == "" {
			return "/"
		}
		if !strings.HasPrefix(path, "/") {
			return "/" + path
		}
		return path
	case path == "":
		return base
	}

	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

func defaultErrorHandler(w http.ResponseWriter, req *http.Request, err error) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(req.Context().Err(), context.DeadlineExceeded) {
		gwerrors.Write(w, gwerrors.NewGatewayTimeoutError("backend did not respond in time"))
		return
	}
	gwerrors.Write(w, gwerrors.NewBadGatewayError(err.Error()))
}
