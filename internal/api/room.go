package api

import (
	"strconv"

	"wager-service/internal/service"
	"wager-service/internal/service/fair"
	"wager-service/internal/service/round"
	"wager-service/pkg/response"

	"github.com/gin-gonic/gin"
)

func listRooms(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.Success(ctx, c.Rounds.Rooms())
	}
}

func currentRound(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		engine, err := c.Rounds.Engine(ctx.Param("roomId"))
		if err != nil {
			fail(ctx, err)
			return
		}
		v, ok := engine.CurrentRound()
		if !ok {
			response.Success(ctx, nil)
			return
		}
		response.Success(ctx, v)
	}
}

func roundHistory(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
		rows, err := c.Rounds.Store().FinishedRounds(ctx.Request.Context(), ctx.Param("roomId"), limit)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, rows)
	}
}

func roundDetail(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		roundID, err := strconv.ParseInt(ctx.Param("roundId"), 10, 64)
		if err != nil {
			response.Error(ctx, 400, "invalid round id")
			return
		}
		row, err := c.Rounds.Store().GetRound(ctx.Request.Context(), roundID)
		if err != nil {
			fail(ctx, err)
			return
		}
		// the seed stays secret while the round is live
		if row.Status != round.StatusFinished && row.Status != round.StatusError {
			row.ServerSeed = ""
			row.OutcomeJSON = nil
		}
		events, err := c.Rounds.Store().Events(ctx.Request.Context(), roundID)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, gin.H{"round": row, "events": events})
	}
}

type verifyRequest struct {
	ServerSeed       string `json:"serverSeed" binding:"required"`
	HashedServerSeed string `json:"hashedServerSeed" binding:"required"`
	ClientSeed       string `json:"clientSeed" binding:"required"`
	Nonce            int64  `json:"nonce"`
	Space            int64  `json:"space" binding:"required"`
	Value            int64  `json:"value"`
}

// verifyOutcome recomputes a published outcome from the revealed seeds so
// players can audit a round without trusting the server.
func verifyOutcome(c *service.Container) gin.HandlerFunc {
	oracle := fair.New()
	return func(ctx *gin.Context) {
		var req verifyRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "missing verification fields")
			return
		}
		commitmentOK := oracle.VerifyCommitment(req.ServerSeed, req.HashedServerSeed)
		outcomeOK := oracle.Verify(req.ServerSeed, req.ClientSeed, req.Nonce, req.Space, req.Value)
		response.Success(ctx, gin.H{
			"commitmentValid": commitmentOK,
			"outcomeValid":    outcomeOK,
			"valid":           commitmentOK && outcomeOK,
		})
	}
}

type betRequest struct {
	Amount int64 `json:"amount" binding:"required"`
	Field  int   `json:"field"`
}

func placeBet(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req betRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "amount is required")
			return
		}
		engine, err := c.Rounds.Engine(ctx.Param("roomId"))
		if err != nil {
			fail(ctx, err)
			return
		}
		u, err := c.Users.GetByID(ctx.Request.Context(), userID(ctx))
		if err != nil {
			fail(ctx, err)
			return
		}

		v, err := engine.PlaceBet(ctx.Request.Context(), round.BetRequest{
			UserID:         u.ID,
			Username:       u.Nickname,
			Avatar:         u.Avatar,
			Amount:         req.Amount,
			Field:          req.Field,
			SuspendedUntil: u.GamingSuspendedUntil,
		})
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, v)
	}
}

type clientSeedRequest struct {
	Seed string `json:"seed" binding:"required"`
}

func updateClientSeed(c *service.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req clientSeedRequest
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.Error(ctx, 400, "seed is required")
			return
		}
		engine, err := c.Rounds.Engine(ctx.Param("roomId"))
		if err != nil {
			fail(ctx, err)
			return
		}
		v, err := engine.UpdateClientSeed(ctx.Request.Context(), userID(ctx), req.Seed)
		if err != nil {
			fail(ctx, err)
			return
		}
		response.Success(ctx, v)
	}
}
