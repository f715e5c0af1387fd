package controllers

import (
	"io"
	"net/http"

	"github.com/JuanCarJ/studioz-academy-sub000/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20

type WebhookController struct {
	webhookService services.WebhookService
	logger         *zap.Logger
}

func NewWebhookController(svc services.WebhookService, logger *zap.Logger) *WebhookController {
	return &WebhookController{webhookService: svc, logger: logger}
}

// HandleWompi handles POST /webhooks/wompi. The raw body is kept intact for
// hashing.
func (wc *WebhookController) HandleWompi(ctx *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxWebhookBody))
	if err != nil {
		wc.logger.Warn("Failed to read webhook body", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	res, svcErr := wc.webhookService.HandleEvent(ctx.Request.Context(), body, ctx.ClientIP())
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"error": svcErr.Message})
		return
	}
	if res.Duplicate {
		ctx.JSON(http.StatusOK, gin.H{"received": true, "duplicate": true})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"received": res.Received, "applied": res.Applied})
}
