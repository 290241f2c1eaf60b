// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/wavhaven-backend/internal/i18n"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", preferredLanguage(c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// preferredLanguage walks an Accept-Language header such as
// "es-MX,es;q=0.9,en;q=0.8" in order and returns the first supported base
// language. Quality values are not re-sorted; browsers already send them in order.
func preferredLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(part, ";")[0])
		if tag == "" || tag == "*" {
			continue
		}
		fields := strings.FieldsFunc(tag, func(r rune) bool { return r == '-' || r == '_' })
		if len(fields) == 0 {
			continue
		}
		base := strings.ToLower(fields[0])
		if i18n.IsSupported(base) {
			return base
		}
	}
	return "en"
}
