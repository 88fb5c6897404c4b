package main

import (
	"github.com/gin-gonic/gin"

	"bsc-custody.backend/internal/interfaces/http/handlers"
	"bsc-custody.backend/internal/interfaces/http/middleware"
)

type routeDeps struct {
	walletHandler  *handlers.WalletHandler
	depositHandler *handlers.DepositHandler
	balanceHandler *handlers.BalanceHandler
	sweepHandler   *handlers.SweepHandler
	authMiddleware gin.HandlerFunc
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	// Address issuance for the platform backend (internal)
	r.POST("/generate-wallet", d.walletHandler.GenerateWallet)

	v1 := r.Group("/api/v1")
	{
		// Wallet routes (internal)
		wallets := v1.Group("/wallets")
		{
			wallets.POST("", d.walletHandler.GetOrCreateWallet)
			wallets.GET("/:userId", d.walletHandler.GetWallet)
		}

		// Deposit routes (internal)
		deposits := v1.Group("/deposits")
		{
			deposits.POST("/monitor", middleware.IdempotencyMiddleware(), d.depositHandler.MonitorDeposit)
			deposits.POST("/check", d.depositHandler.CheckDeposits)
			deposits.GET("", d.depositHandler.ListDeposits)
		}

		// User reads (internal)
		users := v1.Group("/users")
		{
			users.GET("/:userId/balance", d.balanceHandler.GetBalance)
			users.GET("/:userId/notifications", d.balanceHandler.GetNotifications)
		}

		// Sweep administration (protected)
		sweep := v1.Group("/admin/sweep")
		sweep.Use(d.authMiddleware, middleware.RequireAdmin())
		{
			sweep.GET("/status", d.sweepHandler.GetStatus)
			sweep.POST("/start", d.sweepHandler.Start)
			sweep.POST("/stop", d.sweepHandler.Stop)
			sweep.POST("/trigger", d.sweepHandler.Trigger)
			sweep.POST("/emergency", middleware.IdempotencyMiddleware(), d.sweepHandler.EmergencySweep)
			sweep.GET("/stats", d.sweepHandler.GetStats)
			sweep.GET("/operations", d.sweepHandler.ListOperations)
			sweep.PUT("/config", d.sweepHandler.UpdateConfig)
		}
	}
}
