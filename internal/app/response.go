package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse 统一响应结构
type APIResponse struct {
	Success bool   `json:"success"`
	Demo    bool   `json:"demo,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RespondJSON 成功响应
func RespondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, APIResponse{Success: true, Data: data})
}

// RespondError 错误响应（使用 err.Error() 作为消息）
func RespondError(c *gin.Context, code int, err error) {
	msg := http.StatusText(code)
	if err != nil {
		msg = err.Error()
	}
	RespondErrorMsg(c, code, msg)
}

// RespondErrorMsg 错误响应（自定义消息）
func RespondErrorMsg(c *gin.Context, code int, msg string) {
	c.JSON(code, APIResponse{Success: false, Error: msg})
}
