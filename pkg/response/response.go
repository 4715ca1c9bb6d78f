package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误分类，对外稳定，客户端按 kind 分支处理
const (
	KindNotFound            = "not_found"
	KindInvalidArgument     = "invalid_argument"
	KindInsufficientBalance = "insufficient_balance"
	KindConflict            = "conflict"
	KindUnauthorized        = "unauthorized"
	KindForbidden           = "forbidden"
	KindStoreUnavailable    = "store_unavailable"
	KindInternal            = "internal"
)

// Error 统一错误响应体
// 只含分类和给人看的说明，不带堆栈、连接串等内部细节
type Error struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func Fail(c *gin.Context, status int, kind, message string) {
	c.JSON(status, Error{Kind: kind, Message: message})
}

func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, KindNotFound, message)
}

func InvalidArgument(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, KindInvalidArgument, message)
}

func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, KindUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Fail(c, http.StatusForbidden, KindForbidden, message)
}

func StoreUnavailable(c *gin.Context, message string) {
	Fail(c, http.StatusServiceUnavailable, KindStoreUnavailable, message)
}
