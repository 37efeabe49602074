package middleware

import (
	"context"
	"net/http"
)

// Middleware はルートごとに転送前のリクエストを処理する
type Middleware interface {
	// Process は更新したcontextを返す
	// エラーを返した場合、リクエストはバックエンドに転送されない
	Process(ctx context.Context, req *http.Request) (context.Context, error)
}

// Func は関数を Middleware として使うためのアダプタ
type Func func(ctx context.Context, req *http.Request) (context.Context, error)

// Process は f(ctx, req) を呼び出す
func (f Func) Process(ctx context.Context, req *http.Request) (context.Context, error) {
	return f(ctx, req)
}

// Chain は複数のミドルウェアを順に実行する
type Chain struct {
	middlewares []Middleware
}

// NewChain は新しいミドルウェアチェーンを作成する
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Execute はチェーン内のミドルウェアを順に実行する
// いずれかがエラーを返した時点で中断する
func (c *Chain) Execute(ctx context.Context, req *http.Request) (context.Context, error) {
	for _, mw := range c.middlewares {
		var err error
		ctx, err = mw.Process(ctx, req)
		if err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// Len はチェーン内のミドルウェア数を返す
func (c *Chain) Len() int {
	return len(c.middlewares)
}
