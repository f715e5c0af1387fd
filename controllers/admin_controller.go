package controllers

import (
	"net/http"

	"github.com/JuanCarJ/studioz-academy-sub000/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AdminController struct {
	orderService  services.OrderService
	notifications services.NotificationService
	logger        *zap.Logger
}

func NewAdminController(orderService services.OrderService, notifications services.NotificationService, logger *zap.Logger) *AdminController {
	return &AdminController{orderService: orderService, notifications: notifications, logger: logger}
}

// ListPaymentEvents handles GET /admin/orders/:id/events
func (ac *AdminController) ListPaymentEvents(ctx *gin.Context) {
	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	audit, svcErr := ac.orderService.ListPaymentEvents(ctx.Request.Context(), orderID)
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, audit)
}

// ResendConfirmation handles POST /admin/orders/:id/resend-confirmation
func (ac *AdminController) ResendConfirmation(ctx *gin.Context) {
	orderID, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	if svcErr := ac.notifications.Resend(ctx.Request.Context(), orderID); svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}

	ac.logger.Info("Admin re-queued confirmation email", zap.String("order_id", orderID.String()))
	ctx.JSON(http.StatusAccepted, gin.H{"queued": true})
}
