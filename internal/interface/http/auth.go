package httpservice

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

const (
	bearerSchema = "Bearer "
	roleClaim    = "role"
	adminRole    = "admin"
)

func adminAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		log.Warn("admin jwt secret not set, admin routes are not protected")
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)

	return func(c *gin.Context) {
		tokenString, ok := strings.CutPrefix(c.GetHeader("Authorization"), bearerSchema)
		if !ok || tokenString == "" {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized, gin.H{"error": "missing bearer token"},
			)
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(
			tokenString, claims,
			func(*jwt.Token) (interface{}, error) { return key, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		)
		if err != nil || !token.Valid {
			log.WithError(err).Debug("rejected admin token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if role, _ := claims[roleClaim].(string); role != adminRole {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// NewAdminToken signs a token accepted by the admin routes for ttl.
func NewAdminToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("missing secret")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		roleClaim: adminRole,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}
