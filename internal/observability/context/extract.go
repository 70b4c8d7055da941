package context

import (
	"strings"

	"github.com/gin-gonic/gin"
)

func RequestIDFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if c.Request != nil {
		if value := RequestIDFromContext(c.Request.Context()); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.GetString("request_id"))
}

func CustomerCodeFromGin(c *gin.Context) string {
	if c == nil {
		return ""
	}
	if c.Request != nil {
		if value := CustomerCodeFromContext(c.Request.Context()); value != "" {
			return value
		}
	}
	return strings.TrimSpace(c.GetString("customer_code"))
}
