package httpapi

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"jewelpos/backend/internal/metrics"
	"jewelpos/backend/internal/service"
	"jewelpos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        *metrics.Metrics
}

type API struct {
	svc          *service.Service
	auth         *AuthManager
	opts         Options
	limiter      *keyedLimiter
	loginLimiter *keyedLimiter
}

func New(svc *service.Service, auth *AuthManager, opts Options) *API {
	api := &API{
		svc:  svc,
		auth: auth,
		opts: opts,
		// 5 attempts per client and email, refilled one every 12s.
		loginLimiter: newKeyedLimiter(rate.Every(12*time.Second), 5),
	}
	if opts.RateLimitRPS > 0 {
		api.limiter = newKeyedLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst)
	}
	return api
}

func (a *API) Handler() http.Handler {
	router := gin.New()
	// ClientIP keys the rate limiters; never take it from forwarded headers.
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery())
	router.Use(securityHeaders())
	router.Use(a.corsMiddleware())
	router.Use(requestLogger())
	router.Use(limitBody())
	router.Use(a.observe())
	if a.limiter != nil {
		router.Use(a.limiter.middleware())
	}

	router.GET("/health", a.handleHealth)
	router.GET("/metrics", gin.WrapH(a.opts.Metrics.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(a.identify())
	a.registerRoutes(v1)

	router.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, errors.New("route not found"))
	})
	return router
}

func (a *API) corsMiddleware() gin.HandlerFunc {
	origins := a.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://127.0.0.1:3000"}
	}
	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Origin"},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	})
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		c.Next()
	}
}

func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		c.Next()
	}
}

func (a *API) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		a.opts.Metrics.ObserveRequest(c.FullPath(), c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(startedAt))
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	writeError(c, statusFor(err), err)
}

// bindJSON decodes the body into dest and runs its binding tags. Decode and
// validation failures are reported as ErrInvalid.
func bindJSON(c *gin.Context, dest any) error {
	err := c.ShouldBindJSON(dest)
	if err == nil {
		return nil
	}
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", store.ErrInvalid, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: invalid request body", store.ErrInvalid)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("[http] internal error (status %d) %s %s: %v", status, c.Request.Method, c.Request.URL.Path, err)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func writeJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
