package httpapi

import (
	"errors"
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/service"
)

const requestIDHeader = "X-Request-ID"

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()

		short := requestID
		if len(short) > 8 {
			short = short[:8]
		}
		log.Printf("[%s] %s | %d | %v | %s | %s", short, c.Request.Method, c.Writer.Status(), time.Since(start), c.ClientIP(), c.Request.URL.Path)
	}
}

// identify attaches the caller's actor to the request context when a valid
// bearer token is present. It never rejects; requireAuth does.
func (a *API) identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.Next()
			return
		}
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			c.Set("auth_error", err)
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

// requireAuth rejects requests without a valid token, and with roles given,
// tokens whose role is not listed.
func (a *API) requireAuth(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := service.ActorFromContext(c.Request.Context())
		if !ok {
			if err, bad := c.Get("auth_error"); bad {
				writeError(c, http.StatusUnauthorized, err.(error))
				return
			}
			writeError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		if len(roles) > 0 && !slices.Contains(roles, actor.Role) {
			writeError(c, http.StatusForbidden, errors.New("insufficient role"))
			return
		}
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func actorFrom(c *gin.Context) *domain.Actor {
	actor, ok := service.ActorFromContext(c.Request.Context())
	if !ok {
		return nil
	}
	return &actor
}
