package errors

import (
	"encoding/json"
	"errors"
	"net/http"
)

// GatewayError はクライアントに返すエラー
type GatewayError interface {
	error
	StatusCode() int
	ErrorCode() string
	Details() map[string]any
}

type gatewayError struct {
	statusCode int
	errorCode  string
	message    string
	details    map[string]any
}

func (e *gatewayError) Error() string {
	return e.message
}

func (e *gatewayError) StatusCode() int {
	return e.statusCode
}

func (e *gatewayError) ErrorCode() string {
	return e.errorCode
}

func (e *gatewayError) Details() map[string]any {
	return e.details
}

// ErrorResponse はエラーレスポンスのJSON構造
type ErrorResponse struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// ToJSON はエラーをJSON形式に変換する
func ToJSON(err GatewayError) []byte {
	resp := ErrorResponse{}
	resp.Error.Code = err.ErrorCode()
	resp.Error.Message = err.Error()
	resp.Error.Details = err.Details()

	data, _ := json.Marshal(resp)
	return data
}

// Write はエラーをJSONレスポンスとして書き込む
func Write(w http.ResponseWriter, err GatewayError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	w.Write(ToJSON(err))
}

// NewError はエラーを生成する
func NewError(statusCode int, errorCode, message string) GatewayError {
	return &gatewayError{
		statusCode: statusCode,
		errorCode:  errorCode,
		message:    message,
	}
}

// NewErrorWithDetails は詳細情報付きのエラーを生成する
func NewErrorWithDetails(statusCode int, errorCode, message string, details map[string]any) GatewayError {
	return &gatewayError{
		statusCode: statusCode,
		errorCode:  errorCode,
		message:    message,
		details:    details,
	}
}

// NewUnauthorizedError は401エラーを生成する
func NewUnauthorizedError(message string) GatewayError {
	return NewError(http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// NewForbiddenError は403エラーを生成する
func NewForbiddenError(message string) GatewayError {
	return NewError(http.StatusForbidden, "FORBIDDEN", message)
}

// NewNotFoundError は404エラーを生成する
func NewNotFoundError(message string) GatewayError {
	return NewError(http.StatusNotFound, "NOT_FOUND", message)
}

// NewMethodNotAllowedError は405エラーを生成する
// allowed が空でない場合は許可されているメソッドを詳細に含める
func NewMethodNotAllowedError(message string, allowed []string) GatewayError {
	if len(allowed) == 0 {
		return NewError(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", message)
	}
	return NewErrorWithDetails(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", message, map[string]any{
		"allowed_methods": allowed,
	})
}

// NewInternalServerError は500エラーを生成する
func NewInternalServerError(message string) GatewayError {
	return NewError(http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message)
}

// NewBadGatewayError は502エラーを生成する
func NewBadGatewayError(message string) GatewayError {
	return NewError(http.StatusBadGateway, "BAD_GATEWAY", message)
}

// NewGatewayTimeoutError は504エラーを生成する
func NewGatewayTimeoutError(message string) GatewayError {
	return NewError(http.StatusGatewayTimeout, "GATEWAY_TIMEOUT", message)
}

// As はエラーチェーンからGatewayErrorを取り出す
func As(err error) (GatewayError, bool) {
	var ge GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// WrapError は既存のエラーをGatewayErrorにラップする
// エラーチェーンにGatewayErrorが含まれていればそれを返す
func WrapError(err error, statusCode int, errorCode string) GatewayError {
	if err == nil {
		return nil
	}

	if ge, ok := As(err); ok {
		return ge
	}

	return NewError(statusCode, errorCode, err.Error())
}
