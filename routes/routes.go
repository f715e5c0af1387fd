package routes

import (
	"net/http"

	commonmw "github.com/JuanCarJ/studioz-academy-sub000/common/middleware"
	"github.com/JuanCarJ/studioz-academy-sub000/controllers"
	"github.com/JuanCarJ/studioz-academy-sub000/middleware"

	"github.com/gin-gonic/gin"
)

const ServiceName = "payment-service"

type Controllers struct {
	Webhook  *controllers.WebhookController
	Checkout *controllers.CheckoutController
	Orders   *controllers.OrderController
	Cron     *controllers.CronController
	Admin    *controllers.AdminController
}

type Options struct {
	JWTSecret      []byte
	CronSecret     string
	AllowedOrigins string
	// WebhookRateLimit and RecheckRateLimit are requests per minute per IP.
	WebhookRateLimit int
	RecheckRateLimit int
}

func RegisterRoutes(r *gin.Engine, c Controllers, opts Options) {
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
	})

	// Gateway callbacks (signature verified in the service)
	r.POST("/webhooks/wompi", commonmw.RateLimit(opts.WebhookRateLimit, opts.WebhookRateLimit), c.Webhook.HandleWompi)

	user := r.Group("/", commonmw.CORS(opts.AllowedOrigins), middleware.RequireUser(opts.JWTSecret))
	user.POST("/checkout", c.Checkout.Checkout)
	user.GET("/orders/:reference/status", c.Orders.GetPaymentStatus)
	user.POST("/orders/:reference/recheck", commonmw.RateLimit(opts.RecheckRateLimit, 2), c.Orders.Recheck)

	cron := r.Group("/cron", middleware.CronAuth(opts.CronSecret))
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		cron.Handle(method, "/reconcile-pending", c.Cron.ReconcilePending)
		cron.Handle(method, "/send-emails", c.Cron.SendEmails)
	}

	admin := r.Group("/admin", middleware.RequireUser(opts.JWTSecret), middleware.RequireAdmin())
	admin.GET("/orders/:id/events", c.Admin.ListPaymentEvents)
	admin.POST("/orders/:id/resend-confirmation", c.Admin.ResendConfirmation)
}
