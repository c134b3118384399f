package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the presence service needs from an EcoSteps access token.
type Claims struct {
	UserID   int64
	Nickname string
}

// ParseToken validates an HMAC-signed JWT locally and extracts the user
// identity. The WebSocket handler uses this directly because tokens arrive
// as a query parameter there, not as a header.
func ParseToken(secretKey, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims := &Claims{}
	for _, key := range []string{"sub", "userId", "user_id"} {
		if val, exists := mapClaims[key]; exists {
			switch v := val.(type) {
			case float64:
				claims.UserID = int64(v)
			case string:
				fmt.Sscanf(v, "%d", &claims.UserID)
			}
			break
		}
	}
	if claims.UserID == 0 {
		return nil, jwt.ErrTokenInvalidClaims
	}

	if nick, exists := mapClaims["nickname"]; exists {
		if s, ok := nick.(string); ok {
			claims.Nickname = s
		}
	}

	return claims, nil
}

// Auth validates the Bearer token on HTTP routes and stores the caller's
// identity in the request context.
func Auth(secretKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "No authorization header"},
			})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "Invalid authorization header format"},
			})
			c.Abort()
			return
		}

		claims, err := ParseToken(secretKey, parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "UNAUTHORIZED", "message": "Invalid token"},
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("nickname", claims.Nickname)
		c.Next()
	}
}
