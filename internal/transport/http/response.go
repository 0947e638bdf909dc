package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 响应信封约定：{"success": bool, "message": string, ...数据字段平铺在顶层}。
// 仪表盘直接读 data.token / data.keys / data.balance，不做嵌套解包。

// OK 成功响应，data 字段平铺在顶层
func OK(c *gin.Context, fields gin.H) {
	payload := gin.H{"success": true}
	for k, v := range fields {
		payload[k] = v
	}
	c.JSON(http.StatusOK, payload)
}

// OKMessage 只带提示消息的成功响应
func OKMessage(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
	})
}

// Fail 失败响应
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"message": message,
	})
}

// BadRequest 请求参数错误（400）
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// InternalError 服务器内部错误（500）
func InternalError(c *gin.Context) {
	Fail(c, http.StatusInternalServerError, "internal server error")
}
