package controllers

import (
	"net/http"

	"github.com/JuanCarJ/studioz-academy-sub000/middleware"
	"github.com/JuanCarJ/studioz-academy-sub000/services"

	"github.com/gin-gonic/gin"
)

type OrderController struct {
	orderService services.OrderService
	poller       services.Poller
}

func NewOrderController(orderService services.OrderService, poller services.Poller) *OrderController {
	return &OrderController{orderService: orderService, poller: poller}
}

// GetPaymentStatus handles GET /orders/:reference/status
func (oc *OrderController) GetPaymentStatus(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	view, svcErr := oc.orderService.GetPaymentStatus(ctx.Request.Context(), userID, ctx.Param("reference"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// Recheck handles POST /orders/:reference/recheck
func (oc *OrderController) Recheck(ctx *gin.Context) {
	userID, err := middleware.GetUserID(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	res, svcErr := oc.poller.Recheck(ctx.Request.Context(), userID, ctx.Param("reference"))
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, res)
}
