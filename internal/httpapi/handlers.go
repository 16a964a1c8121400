package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"jewelpos/backend/internal/domain"
	"jewelpos/backend/internal/sale"
	"jewelpos/backend/internal/service"
	"jewelpos/backend/internal/store"
)

func (a *API) registerRoutes(r *gin.RouterGroup) {
	authed := a.requireAuth()
	managers := a.requireAuth(domain.RoleAdmin, domain.RoleManager)
	admins := a.requireAuth(domain.RoleAdmin)

	r.GET("/health", a.handleHealth)

	r.POST("/auth/login", a.handleLogin)
	r.POST("/signup", a.handleSignup)

	r.GET("/products", a.handleListProducts)
	r.POST("/products", managers, a.handleCreateProduct)
	r.PUT("/products/:id", managers, a.handleUpdateProduct)
	r.DELETE("/products/:id", managers, a.handleDeleteProduct)

	r.GET("/customers", a.handleListCustomers)
	r.POST("/customers", a.handleCreateCustomer)
	r.PUT("/customers/:id", a.handleUpdateCustomer)

	r.POST("/sales", authed, a.handleCreateSale)
	r.GET("/sales", authed, a.handleListSales)
	r.GET("/reports/sales-summary", authed, a.handleSalesSummary)

	r.POST("/stock-movements", authed, a.handleCreateMovement)
	r.GET("/stock-movements", authed, a.handleListMovements)
	r.PUT("/stock-movements/:id", authed, a.handleUpdateMovement)

	r.POST("/metal-transactions", authed, a.handleCreateMetalTransaction)
	r.GET("/metal-summary", authed, a.handleMetalSummary)
	r.GET("/metal-prices", a.handleMetalPrices)

	r.GET("/settings", authed, a.handleGetSettings)
	r.PUT("/settings", managers, a.handleUpdateSettings)

	r.GET("/audit-logs", admins, a.handleAuditLogs)
	r.GET("/outbox", admins, a.handleOutbox)

	reg := r.Group("/register", authed)
	reg.GET("", a.handleRegisterView)
	reg.DELETE("", a.handleRegisterClear)
	reg.POST("/lines", a.handleRegisterAddLine)
	reg.PUT("/lines/:productId", a.handleRegisterUpdateLine)
	reg.PUT("/discount", a.handleRegisterDiscount)
	reg.PUT("/customer", a.handleRegisterCustomer)
	reg.POST("/checkout", a.handleRegisterCheckout)
}

func (a *API) handleHealth(c *gin.Context) {
	if err := a.svc.Ping(c.Request.Context()); err != nil {
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "store unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (a *API) handleLogin(c *gin.Context) {
	var req domain.LoginRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	key := c.ClientIP() + "|" + strings.ToLower(strings.TrimSpace(req.Email))
	if !a.loginLimiter.Allow(key) {
		c.Header("Retry-After", "60")
		writeError(c, http.StatusTooManyRequests, fmt.Errorf("too many login attempts, try again later"))
		return
	}
	resp, err := a.auth.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

func (a *API) handleSignup(c *gin.Context) {
	var req domain.SignupRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	if !a.loginLimiter.Allow(c.ClientIP() + "|signup") {
		writeError(c, http.StatusTooManyRequests, fmt.Errorf("too many signup attempts, try again later"))
		return
	}
	user, err := a.auth.Signup(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"user": user})
}

func (a *API) handleListProducts(c *gin.Context) {
	products, err := a.svc.ListProducts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"products": products})
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.ProductCreateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	product, err := a.svc.CreateProduct(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"product": product})
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	var req domain.ProductUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	product, err := a.svc.UpdateProduct(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"product": product})
}

func (a *API) handleDeleteProduct(c *gin.Context) {
	if err := a.svc.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true})
}

func (a *API) handleListCustomers(c *gin.Context) {
	customers, err := a.svc.ListCustomers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"customers": customers})
}

func (a *API) handleCreateCustomer(c *gin.Context) {
	var req domain.CustomerCreateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	customer, err := a.svc.CreateCustomer(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"customer": customer})
}

func (a *API) handleUpdateCustomer(c *gin.Context) {
	var req domain.CustomerUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	customer, err := a.svc.UpdateCustomer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"customer": customer})
}

func (a *API) handleCreateSale(c *gin.Context) {
	var req domain.SaleRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	outcome, err := a.svc.CreateSale(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeOutcome(c, outcome)
}

// writeOutcome answers 201 for a stored sale and 202 for one queued in the
// outbox.
func writeOutcome(c *gin.Context, outcome sale.Outcome) {
	status := http.StatusCreated
	if outcome.Status == sale.PendingRetry {
		status = http.StatusAccepted
	}
	writeJSON(c, status, gin.H{"sale": outcome.Sale, "status": outcome.Status})
}

func (a *API) handleListSales(c *gin.Context) {
	sales, err := a.svc.ListSales(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"sales": sales})
}

func (a *API) handleSalesSummary(c *gin.Context) {
	summary, err := a.svc.SalesSummary(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"summary": summary})
}

func (a *API) handleCreateMovement(c *gin.Context) {
	var req domain.MovementCreateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	movement, err := a.svc.CreateMovement(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"movement": movement})
}

func (a *API) handleListMovements(c *gin.Context) {
	movements, err := a.svc.ListMovements(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"movements": movements, "locations": service.StoreLocations})
}

func (a *API) handleUpdateMovement(c *gin.Context) {
	var req domain.MovementUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	movement, err := a.svc.UpdateMovement(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"movement": movement})
}

func (a *API) handleCreateMetalTransaction(c *gin.Context) {
	var req domain.MetalTransactionRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	tx, err := a.svc.CreateMetalTransaction(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"metalTransaction": tx})
}

func (a *API) handleMetalSummary(c *gin.Context) {
	summary, err := a.svc.MetalSummary(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"metalSummary": summary})
}

func (a *API) handleMetalPrices(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"prices": a.svc.MetalPrices()})
}

func (a *API) handleGetSettings(c *gin.Context) {
	settings, err := a.svc.GetSettings(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"settings": settings})
}

// handleUpdateSettings stores the body verbatim; it only has to be a JSON object.
func (a *API) handleUpdateSettings(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		fail(c, err)
		return
	}
	raw = bytes.TrimSpace(raw)
	if !json.Valid(raw) || len(raw) == 0 || raw[0] != '{' {
		fail(c, fmt.Errorf("%w: settings must be a JSON object", store.ErrInvalid))
		return
	}
	settings, err := a.svc.UpdateSettings(c.Request.Context(), domain.Settings(raw))
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"settings": settings})
}

func (a *API) handleAuditLogs(c *gin.Context) {
	limit := parsePositiveLimit(c.Query("limit"), 100, 1000)
	logs, err := a.svc.ListAuditLogs(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"auditLogs": logs})
}

func (a *API) handleOutbox(c *gin.Context) {
	entries, err := a.svc.ListOutbox(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"outbox": entries, "pending": len(entries)})
}
