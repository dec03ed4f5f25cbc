package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/interview-room/internal/response"
	"github.com/stemsi/interview-room/internal/service"
	"golang.org/x/crypto/bcrypt"
)

const (
	// ContextKeyTicket is the Gin context key for room ticket claims.
	ContextKeyTicket = "ticket"
)

type ticketValidator interface {
	Validate(tokenStr string) (*service.TicketClaims, error)
}

// RequireRoomTicket validates a room ticket from ?token=... or the Authorization
// header. Browsers cannot set headers on WebSocket upgrades, so the query wins.
func RequireRoomTicket(tickets ticketValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			tokenStr = bearer(c.GetHeader("Authorization"))
		}
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTicketRequired)
			return
		}

		claims, err := tickets.Validate(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTicketInvalid)
			return
		}

		c.Set(ContextKeyTicket, claims)
		c.Next()
	}
}

// GetTicket retrieves the ticket claims from the Gin context.
func GetTicket(c *gin.Context) *service.TicketClaims {
	val, exists := c.Get(ContextKeyTicket)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.TicketClaims)
	if !ok {
		return nil
	}
	return claims
}

// RequireReviewKey guards reviewer endpoints with the X-Review-Key header. An
// empty key disables them. key may be a bcrypt hash of the real key.
func RequireReviewKey(key string) gin.HandlerFunc {
	hashed := isBcryptHash(key)
	return func(c *gin.Context) {
		if key == "" {
			response.AbortFail(c, http.StatusNotFound, response.ErrReviewDisabled)
			return
		}
		got := c.GetHeader("X-Review-Key")
		var ok bool
		if hashed {
			ok = got != "" && bcrypt.CompareHashAndPassword([]byte(key), []byte(got)) == nil
		} else {
			ok = subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1
		}
		if !ok {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrReviewKeyInvalid)
			return
		}
		c.Next()
	}
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

func bearer(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
