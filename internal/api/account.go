package api

import (
	"strconv"

	"wager-service/internal/service"
	"wager-service/pkg/response"

	"github.com/gin-gonic/gin"
)

func profile(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		u, err := c.Users.GetByID(ctx.Request.Context(), userID(ctx))
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, u)
	}
}

type updateProfileRequest struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

func updateProfile(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req updateProfileRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "invalid profile payload")
			return
		}
		u, err := c.Users.UpdateProfile(ctx.Request.Context(), userID(ctx), req.Nickname, req.Avatar)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, u)
	}
}

func wallet(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		w, err := c.Payments.Wallet(ctx.Request.Context(), userID(ctx))
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, w)
	}
}

func transactions(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "50"))
		entries, err := c.Payments.History(ctx.Request.Context(), userID(ctx), limit)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, entries)
	}
}

type depositRequest struct {
	Amount    int64  `json:"amount" binding:"required"`
	Reference string `json:"reference"`
}

func deposit(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req depositRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "amount is required")
			return
		}
		coins, err := c.Payments.Deposit(ctx.Request.Context(), userID(ctx), req.Amount, req.Reference)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, gin.H{"credited": coins})
	}
}

type withdrawRequest struct {
	Amount  int64  `json:"amount" binding:"required"`
	Account string `json:"account" binding:"required"`
}

func withdraw(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req withdrawRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "amount and account are required")
			return
		}
		if err := c.Payments.Withdraw(ctx.Request.Context(), userID(ctx), req.Amount, req.Account); err != nil {
			fail(ctx, err)
			return
		}
		response.SuccessWithMsg(ctx, nil, "withdrawal requested")
	}
}
