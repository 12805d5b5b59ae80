package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// The control API only exposes GET, POST and PUT routes.
const (
	corsMethods = "GET, POST, PUT, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
)

// CORS lets operator dashboards on other origins call the control API.
// allowedOrigins is "*" (or empty) for any origin, otherwise a comma-separated list.
// Preflights from origins outside the list are refused with 403.
func CORS(allowedOrigins string) gin.HandlerFunc {
	allow := originMatcher(allowedOrigins)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		value, ok := allow(origin)
		if ok {
			c.Header("Access-Control-Allow-Origin", value)
			if value != "*" {
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		if c.Request.Method != http.MethodOptions || c.GetHeader("Access-Control-Request-Method") == "" {
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Header("Access-Control-Allow-Methods", corsMethods)
		c.Header("Access-Control-Allow-Headers", corsHeaders)
		c.Header("Access-Control-Max-Age", "86400")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// originMatcher returns the Access-Control-Allow-Origin value for an origin
// and whether it is allowed at all.
func originMatcher(list string) func(string) (string, bool) {
	set := make(map[string]struct{})
	for _, o := range strings.Split(list, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			set[o] = struct{}{}
		}
	}
	if _, wildcard := set["*"]; wildcard || len(set) == 0 {
		return func(string) (string, bool) { return "*", true }
	}
	return func(origin string) (string, bool) {
		_, ok := set[origin]
		return origin, ok
	}
}
