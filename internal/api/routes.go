package api

import (
	"net/http"

	"payment-api/internal/services"

	"github.com/gin-gonic/gin"
)

// Handler holds the services behind the HTTP API
type Handler struct {
	orders      *services.OrderService
	reconciler  *services.NotificationReconciler
	memberships *services.MembershipService
	audio       *services.AudioAccessService
	plans       *services.PlanCatalog
	stats       func() map[string]interface{}
}

// Deps lists everything NewHandler needs. Stats is optional.
type Deps struct {
	Orders      *services.OrderService
	Reconciler  *services.NotificationReconciler
	Memberships *services.MembershipService
	Audio       *services.AudioAccessService
	Plans       *services.PlanCatalog
	Stats       func() map[string]interface{}
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		orders:      d.Orders,
		reconciler:  d.Reconciler,
		memberships: d.Memberships,
		audio:       d.Audio,
		plans:       d.Plans,
		stats:       d.Stats,
	}
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler, auth gin.HandlerFunc) {
	// Gateway callbacks (no authentication, verified by signature)
	r.GET("/notify_url", h.PaymentNotify)
	r.POST("/notify_url", h.PaymentNotify)

	api := r.Group("/api")
	{
		api.POST("/payment/notify", h.PaymentNotify)

		// Public catalogue
		api.GET("/subscription/pricing", h.GetPricing)

		// Client API (requires a user token)
		user := api.Group("")
		user.Use(auth)
		{
			user.POST("/create_order", h.CreateOrder)
			user.POST("/create_subscription_qr_order", h.CreateSubscriptionOrder)
			user.GET("/get_order_status/:out_trade_no", h.GetOrderStatus)
			user.GET("/orders", h.ListOrders)

			user.GET("/user/membership", h.GetMembership)
			user.GET("/user/audio-access", h.GetAudioAccess)
			user.GET("/audio/:audio_name/check-access", h.CheckAudioAccess)
		}
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":  "ok",
			"service": "payment-api",
		}
		if h.stats != nil {
			body["replay_guard"] = h.stats()
		}
		c.JSON(http.StatusOK, body)
	})
}
