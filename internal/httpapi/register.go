package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jewelpos/backend/internal/domain"
)

// Register endpoints operate on the caller's own open receipt.

func (a *API) handleRegisterView(c *gin.Context) {
	view, err := a.svc.RegisterView(c.Request.Context())
	writeRegister(c, view, err)
}

func (a *API) handleRegisterClear(c *gin.Context) {
	view, err := a.svc.RegisterClear(c.Request.Context())
	writeRegister(c, view, err)
}

func (a *API) handleRegisterAddLine(c *gin.Context) {
	var req domain.RegisterLineRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	view, err := a.svc.RegisterAddLine(c.Request.Context(), req)
	writeRegister(c, view, err)
}

func (a *API) handleRegisterUpdateLine(c *gin.Context) {
	var req domain.RegisterLineUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	view, err := a.svc.RegisterUpdateLine(c.Request.Context(), c.Param("productId"), req)
	writeRegister(c, view, err)
}

func (a *API) handleRegisterDiscount(c *gin.Context) {
	var req domain.RegisterDiscountRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	view, err := a.svc.RegisterSetDiscount(c.Request.Context(), req)
	writeRegister(c, view, err)
}

func (a *API) handleRegisterCustomer(c *gin.Context) {
	var req domain.RegisterCustomerRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	view, err := a.svc.RegisterSetCustomer(c.Request.Context(), req)
	writeRegister(c, view, err)
}

func (a *API) handleRegisterCheckout(c *gin.Context) {
	var req domain.CheckoutRequest
	if err := bindJSON(c, &req); err != nil {
		fail(c, err)
		return
	}
	outcome, err := a.svc.RegisterCheckout(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	writeOutcome(c, outcome)
}

func writeRegister(c *gin.Context, view domain.RegisterView, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"register": view})
}
