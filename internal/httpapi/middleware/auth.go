package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/video-factory/internal/auth"
	"github.com/suPer8Hu/video-factory/internal/common"
)

const SubjectKey = "subject"

// AuthRequired checks a Bearer token signed with secret. An empty secret
// turns authentication off.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		h := c.GetHeader("Authorization")
		tok, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(tok) == "" {
			common.Fail(c, http.StatusUnauthorized, 40101, "missing bearer token")
			return
		}

		sub, err := auth.ParseJWT(strings.TrimSpace(tok), secret)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid token")
			return
		}
		c.Set(SubjectKey, sub)
		c.Next()
	}
}
