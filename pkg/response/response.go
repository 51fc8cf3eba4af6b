// Package response 统一的 JSON 响应信封
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequestIDKey gin.Context 中请求 ID 的键
const RequestIDKey = "request_id"

// Body 响应信封
type Body struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// Success 200 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{
		Code:      0,
		Message:   "success",
		Data:      data,
		RequestID: c.GetString(RequestIDKey),
	})
}

// ErrorWithStatus 指定 HTTP 状态码的错误响应
func ErrorWithStatus(c *gin.Context, status int, message, detail string) {
	c.AbortWithStatusJSON(status, Body{
		Code:      status,
		Message:   message,
		Detail:    detail,
		RequestID: c.GetString(RequestIDKey),
	})
}
