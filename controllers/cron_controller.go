package controllers

import (
	"net/http"
	"time"

	"github.com/JuanCarJ/studioz-academy-sub000/services"

	"github.com/gin-gonic/gin"
)

// CronController exposes the scheduled jobs to the external scheduler.
type CronController struct {
	poller        services.Poller
	notifications services.NotificationService
	now           func() time.Time
}

func NewCronController(poller services.Poller, notifications services.NotificationService) *CronController {
	return &CronController{poller: poller, notifications: notifications, now: time.Now}
}

// ReconcilePending handles GET|POST /cron/reconcile-pending
func (cc *CronController) ReconcilePending(ctx *gin.Context) {
	res, svcErr := cc.poller.SweepPending(ctx.Request.Context())
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"ok": false, "error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"processed":  res.Processed,
		"reconciled": res.Reconciled,
		"failed":     res.Failed,
		"timestamp":  cc.now().UTC().Format(time.RFC3339),
	})
}

// SendEmails handles GET|POST /cron/send-emails
func (cc *CronController) SendEmails(ctx *gin.Context) {
	res, svcErr := cc.notifications.SendDue(ctx.Request.Context())
	if svcErr != nil {
		ctx.JSON(svcErr.StatusCode, gin.H{"ok": false, "error": svcErr.Message})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"processed": res.Processed,
		"sent":      res.Sent,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
		"timestamp": cc.now().UTC().Format(time.RFC3339),
	})
}
