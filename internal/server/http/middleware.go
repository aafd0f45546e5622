package httpserver

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// RequestID accepts a well-formed inbound X-Request-ID or assigns a new v4 id.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.FromString(c.GetHeader(RequestIDHeader))
		if err != nil || id == uuid.Nil {
			id = uuid.Must(uuid.NewV4())
		}
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Header(RequestIDHeader, id.String())
		c.Next()
	}
}

// Logging writes one structured line per request.
func Logging(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		rid, _ := RequestIDFromCtx(c.Request.Context())
		// metadata only, never headers or bodies
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
			zap.String("request_id", rid.String()),
		)
	}
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// vendorHeaders sets the headers legacy console clients expect on every API response.
func vendorHeaders(now func() time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/xml")
		c.Header("Server", "Nintendo 3DS (http)")
		c.Header("X-Nintendo-Date", strconv.FormatInt(now().UnixMilli(), 10))
		c.Next()
	}
}
