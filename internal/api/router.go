package api

import (
	"errors"
	"net/http"

	"wager-service/internal/middleware"
	"wager-service/internal/service"
	"wager-service/internal/ws"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/response"

	"github.com/gin-gonic/gin"
)

func SetupRouter(c *service.Container, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/sms-code", sendSMSCode(c))
			authGroup.POST("/login", login(c))
		}

		api.GET("/rooms", listRooms(c))
		api.GET("/rooms/:roomId/round", currentRound(c))
		api.GET("/rooms/:roomId/history", roundHistory(c))
		api.GET("/rounds/:roundId", roundDetail(c))
		api.POST("/verify", verifyOutcome(c))

		me := api.Group("/me", middleware.AuthRequired())
		{
			me.GET("", profile(c))
			me.PUT("", updateProfile(c))
			me.GET("/wallet", wallet(c))
			me.GET("/transactions", transactions(c))
		}

		pay := api.Group("/payments", middleware.AuthRequired())
		{
			pay.POST("/deposit", deposit(c))
			pay.POST("/withdraw", withdraw(c))
		}

		play := api.Group("/rooms", middleware.AuthRequired())
		{
			play.POST("/:roomId/bets", placeBet(c))
			play.PUT("/:roomId/client-seed", updateClientSeed(c))
		}

		adminGroup := api.Group("/admin")
		{
			adminGroup.POST("/login", adminLogin(c))

			guarded := adminGroup.Group("", middleware.AdminAuthRequired())
			{
				guarded.GET("/rooms", adminListRooms(c))
				guarded.PUT("/rooms/:roomId", adminUpdateRoom(c))
				guarded.GET("/users", adminListUsers(c))
				guarded.POST("/users/:userId/suspend", adminSuspendUser(c))
				guarded.DELETE("/users/:userId/suspend", adminLiftSuspension(c))
				guarded.PUT("/users/:userId/status", adminSetUserStatus(c))
				guarded.POST("/users/:userId/wallet", adminAdjustWallet(c))
				guarded.GET("/rounds/:roundId/transactions", adminRoundTransactions(c))
			}
		}
	}

	r.GET("/ws/rooms/:roomId", ws.ServeRoom(hub, c))

	return r
}

// fail maps service errors onto HTTP statuses.
func fail(ctx *gin.Context, err error) {
	response.Error(ctx, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, appErr.ErrRoomNotFound),
		errors.Is(err, appErr.ErrRoundNotFound),
		errors.Is(err, appErr.ErrUserNotFound),
		errors.Is(err, appErr.ErrAdminNotFound),
		errors.Is(err, appErr.ErrRoomSettingNotFound):
		return http.StatusNotFound
	case errors.Is(err, appErr.ErrInsufficientFunds),
		errors.Is(err, appErr.ErrBelowMinimumStake),
		errors.Is(err, appErr.ErrAboveMaximumStake),
		errors.Is(err, appErr.ErrFixedBidMismatch),
		errors.Is(err, appErr.ErrAlreadyLeadBidder),
		errors.Is(err, appErr.ErrInvalidField),
		errors.Is(err, appErr.ErrInvalidClientSeed),
		errors.Is(err, appErr.ErrNotParticipant),
		errors.Is(err, appErr.ErrInvalidPhone),
		errors.Is(err, appErr.ErrInvalidAmount),
		errors.Is(err, appErr.ErrBelowMinimumOut),
		errors.Is(err, appErr.ErrInvalidRoomSetting),
		errors.Is(err, appErr.ErrInvalidSuspendPayload):
		return http.StatusBadRequest
	case errors.Is(err, appErr.ErrRoundNotAcceptingBets):
		return http.StatusConflict
	case errors.Is(err, appErr.ErrGamingSuspended),
		errors.Is(err, appErr.ErrUserBanned),
		errors.Is(err, appErr.ErrAdminDisabled):
		return http.StatusForbidden
	case errors.Is(err, appErr.ErrInvalidSMSCode),
		errors.Is(err, appErr.ErrSMSCodeExpired),
		errors.Is(err, appErr.ErrInvalidAdminPassword):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func userID(ctx *gin.Context) int64 {
	return ctx.GetInt64(middleware.ContextUserIDKey)
}
