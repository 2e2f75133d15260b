// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"stututor-go/internal/session"
	"stututor-go/pkg/apperr"
	"stututor-go/pkg/log"
)

// respondOK 以统一的响应格式返回成功结果。
func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": message, "data": data})
}

// respondError 把错误类别映射为 HTTP 状态码并返回统一的响应格式。
func respondError(c *gin.Context, op string, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	message := apperr.MessageOf(err)
	if kind == apperr.KindInternal {
		log.Errorf("%s: failed, error: %v", op, err)
		message = "服务器内部错误"
	} else {
		log.Warnf("%s: %s, error: %v", op, kind, err)
	}
	c.JSON(status, gin.H{"code": status, "message": message, "data": gin.H{"kind": kind}})
}

// badRequest 用于请求体无法解析的情况。
func badRequest(c *gin.Context, op string, err error, message string) {
	log.Warnf("%s: Invalid request payload, error: %v", op, err)
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": message, "data": gin.H{"kind": apperr.KindValidation}})
}

// callOptions 把请求中可选的 timeoutMs 转换为调用选项。
func callOptions(timeoutMs int) []session.CallOption {
	if timeoutMs <= 0 {
		return nil
	}
	return []session.CallOption{session.WithTimeout(time.Duration(timeoutMs) * time.Millisecond)}
}
