package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// requestIDMiddleware stamps every request with an X-Request-Id,
// reusing one supplied by the caller so retries and proxies can
// correlate logs across hops.
func requestIDMiddleware(c *gin.Context) {
	id := c.GetHeader("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	c.Set("request_id", id)
	c.Writer.Header().Set("X-Request-Id", id)
	c.Next()
}
