package api

import (
	"wager-service/internal/service"
	"wager-service/pkg/response"

	"github.com/gin-gonic/gin"
)

type sendCodeRequest struct {
	Phone string `json:"phone" binding:"required"`
}

func sendSMSCode(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req sendCodeRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "phone is required")
			return
		}
		if err := c.Auth.SendCode(ctx.Request.Context(), req.Phone); err != nil {
			fail(ctx, err)
			return
		}
		response.SuccessWithMsg(ctx, nil, "code sent")
	}
}

type loginRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func login(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req loginRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "phone and code are required")
			return
		}
		token, u, err := c.Auth.Login(ctx.Request.Context(), req.Phone, req.Code)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, gin.H{"token": token, "user": u})
	}
}

type adminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func adminLogin(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req adminLoginRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "username and password are required")
			return
		}
		token, admin, err := c.Admins.Login(ctx.Request.Context(), req.Username, req.Password)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, gin.H{
			"token": token,
			"admin": gin.H{"id": admin.ID, "username": admin.Username, "displayName": admin.DisplayName},
		})
	}
}
