package middleware

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"route-gateway/internal/config"
	"route-gateway/internal/errors"
	"route-gateway/internal/middleware/auth"
)

// ミドルウェアの種類
const (
	TypeJWT     = "jwt"
	TypeLogging = "logging"
)

// Factory はルート設定からミドルウェアを生成する
type Factory struct {
	jwtPublicKeys map[string]*rsa.PublicKey
	logger        *slog.Logger
}

// FactoryConfig はファクトリーの設定
type FactoryConfig struct {
	JWTPublicKeys map[string]*rsa.PublicKey
	Logger        *slog.Logger
}

// NewFactory は新しいファクトリーを作成する
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Factory{
		jwtPublicKeys: cfg.JWTPublicKeys,
		logger:        cfg.Logger,
	}
}

// Create は設定からミドルウェアを生成する
func (f *Factory) Create(cfg config.MiddlewareConfig) (Middleware, error) {
	switch cfg.Type {
	case TypeJWT:
		return f.createJWTMiddleware(cfg.Config)
	case TypeLogging:
		return f.createLoggingMiddleware(cfg.Config)
	default:
		return nil, fmt.Errorf("unknown middleware type: %s", cfg.Type)
	}
}

// Build は設定の順にミドルウェアを並べたチェーンを生成する
func (f *Factory) Build(cfgs []config.MiddlewareConfig) (*Chain, error) {
	middlewares := make([]Middleware, 0, len(cfgs))
	for _, cfg := range cfgs {
		m, err := f.Create(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create middleware type=%s: %w", cfg.Type, err)
		}
		middlewares = append(middlewares, m)
	}
	return NewChain(middlewares...), nil
}

func (f *Factory) createJWTMiddleware(cfg map[string]any) (Middleware, error) {
	if len(f.jwtPublicKeys) == 0 {
		return nil, fmt.Errorf("jwt middleware requires public keys")
	}

	jwtConfig := auth.JWTConfig{
		PublicKeys:     f.jwtPublicKeys,
		RequiredClaims: stringList(cfg, "required_claims"),
		Issuer:         stringValue(cfg, "issuer"),
		Audience:       stringValue(cfg, "audience"),
	}

	if v := stringValue(cfg, "leeway"); v != "" {
		leeway, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid leeway: %w", err)
		}
		jwtConfig.Leeway = leeway
	}

	jwtMiddleware := auth.NewJWTMiddleware(jwtConfig)

	scope := stringValue(cfg, "required_scope")
	if scope == "" {
		return jwtMiddleware, nil
	}

	return Func(func(ctx context.Context, req *http.Request) (context.Context, error) {
		ctx, err := jwtMiddleware.Process(ctx, req)
		if err != nil {
			return ctx, err
		}
		claims, _ := auth.GetClaimsFromContext(ctx)
		if !auth.HasScope(claims, scope) {
			return ctx, errors.NewForbiddenError(fmt.Sprintf("missing required scope: %s", scope))
		}
		return ctx, nil
	}), nil
}

func (f *Factory) createLoggingMiddleware(cfg map[string]any) (Middleware, error) {
	loggingConfig := LoggingConfig{
		SkipPaths: stringList(cfg, "skip_paths"),
	}
	if v, ok := cfg["trust_request_id"].(bool); ok {
		loggingConfig.TrustRequestID = v
	}

	return NewLoggingMiddleware(f.logger, loggingConfig), nil
}

func stringValue(cfg map[string]any, key string) string {
	s, _ := cfg[key].(string)
	return s
}

func stringList(cfg map[string]any, key string) []string {
	values, ok := cfg[key].([]any)
	if !ok {
		return nil
	}

	list := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			list = append(list, s)
		}
	}
	return list
}
