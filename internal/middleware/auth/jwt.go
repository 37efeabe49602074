package auth

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"route-gateway/internal/errors"
)

type contextKey string

// ClaimsContextKey はJWTクレームを格納するコンテキストキー
const ClaimsContextKey contextKey = "jwt_claims"

// JWTConfig はJWT認証の設定
type JWTConfig struct {
	// PublicKeys はJWT検証用の公開鍵マップ (kid → 公開鍵)
	PublicKeys map[string]*rsa.PublicKey
	// RequiredClaims は必須のクレーム
	RequiredClaims []string
	// Issuer が空でなければ iss クレームと一致する必要がある
	Issuer string
	// Audience が空でなければ aud クレームに含まれている必要がある
	Audience string
	// Leeway は有効期限の検証で許容する時刻のずれ
	Leeway time.Duration
}

// JWTMiddleware はRS256系のJWTを検証する
type JWTMiddleware struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTMiddleware は新しいJWT認証ミドルウェアを作成する
func NewJWTMiddleware(config JWTConfig) *JWTMiddleware {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodRS384.Alg(),
			jwt.SigningMethodRS512.Alg(),
		}),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}

	return &JWTMiddleware{
		config: config,
		parser: jwt.NewParser(opts...),
	}
}

// Process はAuthorizationヘッダーのトークンを検証し、クレームをcontextに格納する
func (m *JWTMiddleware) Process(ctx context.Context, req *http.Request) (context.Context, error) {
	authHeader := req.Header.Get("Authorization")
	if authHeader == "" {
		return ctx, errors.NewUnauthorizedError("missing authorization header")
	}

	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" {
		return ctx, errors.NewUnauthorizedError("invalid authorization header format")
	}

	claims := jwt.MapClaims{}
	if _, err := m.parser.ParseWithClaims(tokenString, claims, m.keyFunc); err != nil {
		return ctx, errors.NewUnauthorizedError(fmt.Sprintf("invalid token: %v", err))
	}

	for _, required := range m.config.RequiredClaims {
		if _, ok := claims[required]; !ok {
			return ctx, errors.NewUnauthorizedError(fmt.Sprintf("missing required claim: %s", required))
		}
	}

	return context.WithValue(ctx, ClaimsContextKey, claims), nil
}

// Handler は next の前にトークンを検証する
// 検証に失敗した場合はエラーレスポンスを返す
func (m *JWTMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx, err := m.Process(req.Context(), req)
		if err != nil {
			errors.Write(w, errors.WrapError(err, http.StatusUnauthorized, "UNAUTHORIZED"))
			return
		}
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func (m *JWTMiddleware) keyFunc(token *jwt.Token) (any, error) {
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("kid header not found")
	}

	publicKey, ok := m.config.PublicKeys[kid]
	if !ok {
		return nil, fmt.Errorf("public key not found for kid: %s", kid)
	}
	return publicKey, nil
}

// GetClaimsFromContext はコンテキストからJWTクレームを取得する
func GetClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(jwt.MapClaims)
	return claims, ok
}

// HasScope はクレームにスコープが含まれているか確認する
// scope（空白区切りの文字列）と scp（文字列の配列）の両方に対応する
func HasScope(claims jwt.MapClaims, scope string) bool {
	if s, ok := claims["scope"].(string); ok && slices.Contains(strings.Fields(s), scope) {
		return true
	}
	if list, ok := claims["scp"].([]any); ok {
		for _, v := range list {
			if v == scope {
				return true
			}
		}
	}
	return false
}

// RequireScope はcontextのクレームにスコープが無いリクエストを403で拒否する
func RequireScope(scope string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		claims, ok := GetClaimsFromContext(req.Context())
		if !ok {
			errors.Write(w, errors.NewUnauthorizedError("missing token claims"))
			return
		}
		if scope != "" && !HasScope(claims, scope) {
			errors.Write(w, errors.NewForbiddenError(fmt.Sprintf("missing required scope: %s", scope)))
			return
		}
		next.ServeHTTP(w, req)
	})
}
