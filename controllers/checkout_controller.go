package controllers

import (
	"net/http"
	"strings"

	"github.com/JuanCarJ/studioz-academy-sub000/middleware"
	"github.com/JuanCarJ/studioz-academy-sub000/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CheckoutController answers the storefront's checkout form with redirects.
type CheckoutController struct {
	checkoutService services.CheckoutService
	frontendURL     string
	logger          *zap.Logger
}

func NewCheckoutController(svc services.CheckoutService, frontendURL string, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{
		checkoutService: svc,
		frontendURL:     strings.TrimRight(frontendURL, "/"),
		logger:          logger,
	}
}

// Checkout handles POST /checkout
func (cc *CheckoutController) Checkout(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	res, svcErr := cc.checkoutService.Checkout(ctx.Request.Context(), userID)
	switch {
	case svcErr != nil:
		cc.logger.Warn("Checkout failed",
			zap.String("user_id", userID.String()),
			zap.Int("status", svcErr.StatusCode),
			zap.String("error", svcErr.Message),
		)
		ctx.Redirect(http.StatusSeeOther, cc.frontendURL+"/cart?error=checkout_failed")
	case res.EmptyCart:
		ctx.Redirect(http.StatusSeeOther, cc.frontendURL+"/cart?error=empty_cart")
	case !res.NeedsPayment():
		ctx.Redirect(http.StatusSeeOther, cc.frontendURL+"/my-courses")
	default:
		ctx.Redirect(http.StatusSeeOther, res.CheckoutURL)
	}
}
