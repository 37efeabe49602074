package routing

import "strings"

// stripServletPath はパスの先頭のサーブレットパスを1回だけ取り除く
// サーブレットパスが空または "/" の場合は何もしない
func stripServletPath(servletPath, path string) string {
	if servletPath == "" || servletPath == "/" {
		return path
	}
	if strings.HasPrefix(path, servletPath) {
		return path[len(servletPath):]
	}
	return path
}

// routeKey はルートパターンを登録用のパターンに変換する
// 先頭にスラッシュを補い、グローバルプレフィックスを付与する
func routeKey(prefix, pattern string) string {
	if !strings.HasPrefix(pattern, "/") {
		pattern = "/" + pattern
	}
	if prefix == "" {
		return pattern
	}
	key := prefix + pattern
	if !strings.HasPrefix(key, "/") {
		key = "/" + key
	}
	return key
}

// routePrefix はルートパターンの最初のワイルドカードより前の部分を返す
// "/account/**" は "/account" になる
func routePrefix(pattern string) (string, bool) {
	index := strings.Index(pattern, "*") - 1
	if index <= 0 {
		return "", false
	}
	return pattern[:index], true
}
