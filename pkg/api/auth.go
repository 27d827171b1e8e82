package api

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by middleware.
const (
	ctxKeyUserID    = "userID"
	ctxKeyRequestID = "requestID"
)

// paidGroup is the auth-proxy group granting access to paid model tiers.
const paidGroup = "paid"

// identityFrom extracts the authenticated user from auth-proxy headers.
// Priority: X-Forwarded-User (oauth2-proxy) > X-Forwarded-Email (oauth2-proxy) >
// X-Remote-User (kube-rbac-proxy). Empty means the request is anonymous.
func identityFrom(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.GetHeader("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.GetHeader("X-Remote-User"); user != "" {
		return user
	}
	return ""
}

// hasPaidPlan reports whether the auth proxy placed the user in the paid
// group. Group membership arrives as a comma-separated header.
func hasPaidPlan(c *gin.Context) bool {
	for _, group := range strings.Split(c.GetHeader("X-Forwarded-Groups"), ",") {
		if strings.TrimSpace(group) == paidGroup {
			return true
		}
	}
	return false
}

// authRequired rejects anonymous requests. Credential checks belong to the
// auth proxy in front of the service; missing identity headers mean it did
// not run.
func authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := identityFrom(c)
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Set(ctxKeyUserID, user)
		c.Next()
	}
}

// clientKey is the rate-limiter identity: the user id for authenticated
// requests, else the client address.
func clientKey(c *gin.Context) string {
	if user := identityFrom(c); user != "" {
		return "user:" + user
	}
	return "ip:" + clientIP(c)
}

// clientIP returns the first well-formed address in X-Forwarded-For,
// falling back to the connection's remote address. Malformed entries are
// skipped rather than trusted.
func clientIP(c *gin.Context) string {
	for _, part := range strings.Split(c.GetHeader("X-Forwarded-For"), ",") {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		if ip := net.ParseIP(candidate); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}
