// Package middleware holds gin middleware shared across the control API.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// IsValidEthAddress reports whether s is a well-formed 20-byte hex address.
func IsValidEthAddress(s string) bool {
	return common.IsHexAddress(s)
}

// ValidateWalletParam rejects requests whose path parameter is not a valid
// ethereum address before the handler runs.
func ValidateWalletParam(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsValidEthAddress(c.Param(name)) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid wallet address"})
			return
		}
		c.Next()
	}
}

// BasicAuth guards mutating endpoints with a single shared credential pair.
// Comparison is constant-time. Empty credentials disable the check.
func BasicAuth(username, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if username == "" && password == "" {
			c.Next()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(username)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(password)) != 1 {
			c.Header("WWW-Authenticate", `Basic realm="copy-agent"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
