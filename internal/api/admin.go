package api

import (
	"strconv"
	"time"

	"wager-service/internal/service"
	"wager-service/internal/service/ledger"
	"wager-service/internal/service/settings"
	appErr "wager-service/pkg/errors"
	"wager-service/pkg/response"

	"github.com/gin-gonic/gin"
)

func adminListRooms(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		rooms, err := c.Settings.ListRooms(ctx.Request.Context())
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, rooms)
	}
}

func adminUpdateRoom(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var rc settings.RoomConfig
		if err := ctx.ShouldBindJSON(&rc); err != nil {
			fail(ctx, appErr.ErrInvalidRoomSetting)
			return
		}
		updated, err := c.Settings.UpdateRoom(ctx.Request.Context(), ctx.Param("roomId"), rc)
		if err != nil {
			fail(ctx, err)
			return
		}
		// the running round keeps its frozen config; the next round picks
		// this up
		response.Success(ctx, updated)
	}
}

func adminListUsers(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(ctx.DefaultQuery("pageSize", "20"))
		users, total, err := c.Users.List(ctx.Request.Context(), page, pageSize)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, gin.H{"users": users, "total": total})
	}
}

type suspendRequest struct {
	Minutes int    `json:"minutes" binding:"required"`
	Reason  string `json:"reason"`
}

func adminSuspendUser(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uid, err := strconv.ParseInt(ctx.Param("userId"), 10, 64)
		if err != nil {
			fail(ctx, appErr.ErrInvalidSuspendPayload)
			return
		}
		var req suspendRequest
		if err := ctx.ShouldBindJSON(&req); err != nil || req.Minutes <= 0 {
			fail(ctx, appErr.ErrInvalidSuspendPayload)
			return
		}
		until := time.Now().Add(time.Duration(req.Minutes) * time.Minute)
		u, err := c.Users.Suspend(ctx.Request.Context(), uid, until, req.Reason)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, u)
	}
}

func adminLiftSuspension(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uid, err := strconv.ParseInt(ctx.Param("userId"), 10, 64)
		if err != nil {
			fail(ctx, appErr.ErrUserNotFound)
			return
		}
		u, err := c.Users.LiftSuspension(ctx.Request.Context(), uid)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, u)
	}
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func adminSetUserStatus(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uid, err := strconv.ParseInt(ctx.Param("userId"), 10, 64)
		if err != nil {
			fail(ctx, appErr.ErrUserNotFound)
			return
		}
		var req setStatusRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "status is required")
			return
		}
		u, err := c.Users.SetStatus(ctx.Request.Context(), uid, req.Status)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, u)
	}
}

type walletAdjustRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// adminAdjustWallet credits (positive) or debits (negative) a wallet as a
// manual correction. The entry keeps the operator's reason for the audit
// trail.
func adminAdjustWallet(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		uid, err := strconv.ParseInt(ctx.Param("userId"), 10, 64)
		if err != nil {
			fail(ctx, appErr.ErrUserNotFound)
			return
		}
		var req walletAdjustRequest
		if err := ctx.ShouldBindJSON(&req); err != nil || req.Amount == 0 {
			fail(ctx, appErr.ErrInvalidWalletPayload)
			return
		}
		if _, err := c.Users.GetByID(ctx.Request.Context(), uid); err != nil {
			fail(ctx, err)
			return
		}

		params := ledger.EntryParams{
			Kind:        "adjustment",
			Description: "admin adjustment: " + req.Reason,
		}
		if req.Amount > 0 {
			params.Amount = req.Amount
			err = c.Ledger.Credit(ctx.Request.Context(), &uid, params)
		} else {
			params.Amount = -req.Amount
			err = c.Ledger.Debit(ctx.Request.Context(), uid, params)
		}
		if err != nil {
			fail(ctx, err)
			return
		}
		w, err := c.Payments.Wallet(ctx.Request.Context(), uid)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, w)
	}
}

func adminRoundTransactions(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		roundID, err := strconv.ParseInt(ctx.Param("roundId"), 10, 64)
		if err != nil {
			fail(ctx, appErr.ErrRoundNotFound)
			return
		}
		entries, err := c.Ledger.RoundTransactions(ctx.Request.Context(), roundID)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, entries)
	}
}
