// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scrapyard/internal/access"
	"scrapyard/internal/http/handlers"
	"scrapyard/internal/http/middleware"
	"scrapyard/internal/modules/account"
	"scrapyard/internal/modules/chat"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/modules/pricing"
	"scrapyard/internal/storage"
)

type RouterDeps struct {
	Accounts *account.Service
	OTP      *otp.Service
	Pickups  *pickup.Service
	Chat     *chat.Service
	Pricing  *pricing.Service
	Uploads  *storage.Uploader
	Tokens   middleware.TokenVerifier
	// ExposeOTP includes issued pickup codes in the contact response.
	ExposeOTP bool
}

func NewRouter(deps RouterDeps, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logger), middleware.Logging(logger))
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api")

	accountHandler := handlers.NewAccountHandler(deps.Accounts, deps.Uploads)
	api.POST("/register/client", accountHandler.RegisterClient)
	api.POST("/register/seller", accountHandler.RegisterSeller)
	api.POST("/login", accountHandler.Login)
	api.POST("/token/refresh", accountHandler.Refresh)

	otpHandler := handlers.NewOTPHandler(deps.OTP)
	api.POST("/otp/send", otpHandler.Send)
	api.POST("/otp/verify", otpHandler.Verify)

	pricingHandler := handlers.NewPricingHandler(deps.Pricing)
	api.GET("/pricing/rates", pricingHandler.Rates)

	pickupHandler := handlers.NewPickupHandler(deps.Pickups, deps.Uploads, deps.ExposeOTP)
	// Holding the pickup id and code is the credential here.
	api.POST("/pickup/verify-otp", pickupHandler.VerifyOTP)

	authed := api.Group("", middleware.Auth(deps.Tokens))
	authed.GET("/account/me", accountHandler.Me)
	authed.POST("/account/verify/send", accountHandler.SendVerification)
	authed.POST("/account/verify", accountHandler.VerifyContact)
	authed.GET("/pickup/detail/:id", pickupHandler.Detail)

	client := authed.Group("/pickup", middleware.RequireRole(access.RoleClient))
	client.POST("/create", pickupHandler.Create)
	client.GET("/list", pickupHandler.List)
	client.POST("/cancel/:id", pickupHandler.Cancel)
	client.POST("/contact", pickupHandler.Contact)
	client.POST("/approve/:id", pickupHandler.Approve)
	client.POST("/reject/:id", pickupHandler.Reject)

	vendorHandler := handlers.NewVendorHandler(deps.Pickups)
	seller := authed.Group("/pickup", middleware.RequireRole(access.RoleSeller))
	seller.GET("/available", vendorHandler.Available)
	seller.GET("/vendor-list", vendorHandler.List)
	seller.POST("/accept/:id", vendorHandler.Accept)
	seller.POST("/vendor-cancel/:id", vendorHandler.Release)
	seller.POST("/complete/:id", vendorHandler.Complete)

	// Chat is open to both roles; participation is checked per pickup.
	chatHandler := handlers.NewChatHandler(deps.Chat)
	authed.GET("/pickup/chat/:id", chatHandler.Thread)
	authed.POST("/pickup/chat/:id", chatHandler.Post)
	authed.POST("/pickup/offer/:id/accept", chatHandler.AcceptOffer)
	authed.POST("/pickup/offer/:id/reject", chatHandler.RejectOffer)

	return r
}
