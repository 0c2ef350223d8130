package main

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/PhanTTKhai/ADO-translate/models"
)

// issueAccessToken signs an HS256 token carrying the user id, name and role.
func issueAccessToken(secret []byte, user *models.User, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":      user.ID,
		"username": user.Username,
		"role":     user.Role.Name,
		"exp":      time.Now().Add(ttl).Unix(),
	})
	return token.SignedString(secret)
}

func (s *server) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || len(authHeader) < 8 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		token, err := jwt.Parse(authHeader[7:], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			return
		}
		username, _ := claims["username"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		c.Set("role", role)
		if uid, ok := claims["uid"].(float64); ok && uid > 0 {
			c.Set("uid", uint(uid))
		}
		c.Next()
	}
}

// userScope returns the user id that limits capture queries, or nil for
// administrators who see everything.
func userScope(c *gin.Context) *uint {
	if c.GetString("role") == models.RoleAdministrator {
		return nil
	}
	if id := ownerID(c); id != nil {
		return id
	}
	none := uint(0)
	return &none
}

func ownerID(c *gin.Context) *uint {
	v, ok := c.Get("uid")
	if !ok {
		return nil
	}
	id := v.(uint)
	return &id
}
