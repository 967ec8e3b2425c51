package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelmint/credit-engine/internal/credit"
	"github.com/pixelmint/credit-engine/internal/generation"
	"github.com/pixelmint/credit-engine/internal/ledger"
	"github.com/pixelmint/credit-engine/internal/payment"
	"github.com/pixelmint/credit-engine/internal/quota"
	"github.com/pixelmint/credit-engine/internal/tier"
)

// Reserver is satisfied by credit.Service.
// Decoupled here so handler tests can use a mock.
type Reserver interface {
	Reserve(ctx context.Context, user common.Address, creditsNeeded int64, preferNFT bool, tag string) (*credit.Reservation, error)
}

// Generator is satisfied by generation.Orchestrator.
type Generator interface {
	Generate(ctx context.Context, res *credit.Reservation, req generation.Request) (*generation.Job, error)
}

// BalanceReader is satisfied by credit.Resolver.
type BalanceReader interface {
	Resolve(ctx context.Context, user common.Address) (*credit.Balances, error)
}

// UsageReader is satisfied by ledger.Ledger.
type UsageReader interface {
	Entries(ctx context.Context, user string, limit int64) ([]ledger.Entry, error)
	ConsumedCredits(ctx context.Context, user string) (int64, error)
	RefundCount(ctx context.Context, user string) (int64, error)
}

// Handler wires up the settlement API onto a Gin engine.
type Handler struct {
	reserver      Reserver
	generator     Generator
	balances      BalanceReader
	usage         UsageReader
	quota         *quota.Counter
	rdb           *redis.Client
	webhookSecret string
	log           *zap.Logger
}

func NewHandler(
	reserver Reserver,
	generator Generator,
	balances BalanceReader,
	usage UsageReader,
	q *quota.Counter,
	rdb *redis.Client,
	webhookSecret string,
	log *zap.Logger,
) *Handler {
	return &Handler{
		reserver:      reserver,
		generator:     generator,
		balances:      balances,
		usage:         usage,
		quota:         q,
		rdb:           rdb,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// Register mounts the API routes on rg and the gateway webhook on root.
// The webhook lives outside the API group: Creem authenticates with its
// signature header, not like an API caller.
func (h *Handler) Register(root *gin.Engine, rg *gin.RouterGroup) {
	rg.POST("/generate", h.handleGenerate)
	rg.GET("/credits/:address", h.handleCredits)
	rg.GET("/usage/:address", h.handleUsage)

	root.POST("/webhooks/creem", h.handleCreemWebhook)
}

type generateRequest struct {
	UserAddress      string `json:"userAddress" binding:"required"`
	ContentType      string `json:"contentType" binding:"required"`
	Prompt           string `json:"prompt" binding:"required"`
	CreditsNeeded    int64  `json:"creditsNeeded" binding:"required"`
	PreferNftCredits bool   `json:"preferNftCredits"`
}

func (h *Handler) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "detail": err.Error()})
		return
	}
	if !common.IsHexAddress(req.UserAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "detail": "userAddress is not a hex address"})
		return
	}
	ct := tier.ContentType(req.ContentType)
	if !ct.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "detail": "unknown contentType"})
		return
	}
	user := common.HexToAddress(req.UserAddress)

	allowed, err := h.quota.Allow(c.Request.Context(), user.Hex())
	if err != nil {
		h.log.Error("quota check", zap.String("user", user.Hex()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "QuotaUnavailable"})
		return
	}
	if !allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "QuotaExceeded"})
		return
	}

	res, err := h.reserver.Reserve(c.Request.Context(), user, req.CreditsNeeded, req.PreferNftCredits, string(ct))
	if err != nil {
		var ice *credit.InsufficientCreditsError
		switch {
		case errors.As(err, &ice):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":     "InsufficientCredits",
				"required":  ice.Required,
				"available": ice.Available,
			})
		case errors.Is(err, credit.ErrBalanceUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "BalanceUnavailable"})
		default:
			h.log.Error("reserve", zap.String("user", user.Hex()), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "ReservationFailed"})
		}
		return
	}

	job, err := h.generator.Generate(c.Request.Context(), res, generation.Request{
		User:        user,
		ContentType: ct,
		Prompt:      req.Prompt,
	})
	if job == nil || job.Status != generation.JobCompleted {
		// Generate only errors when the refund itself failed; credits are
		// restored on every other failure path before it returns.
		resp := gin.H{"error": "GenerationFailed", "creditsRestored": err == nil}
		if job != nil {
			resp["jobId"] = job.ID
		}
		c.JSON(http.StatusInternalServerError, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"resultRef":   job.ResultRef,
		"creditsUsed": res.Credits,
		"source":      res.Source.String(),
		"modelUsed":   job.ModelUsed,
		"jobId":       job.ID,
	})
}

func (h *Handler) handleCredits(c *gin.Context) {
	addr := c.Param("address")
	if !common.IsHexAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "detail": "address is not a hex address"})
		return
	}

	bal, err := h.balances.Resolve(c.Request.Context(), common.HexToAddress(addr))
	if err != nil {
		if errors.Is(err, credit.ErrBalanceUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "BalanceUnavailable"})
			return
		}
		h.log.Error("resolve balances", zap.String("user", addr), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"fungible": bal.Fungible,
		"packages": bal.Packages,
		"total":    bal.Total,
		"partial":  len(bal.Warnings) > 0,
	})
}

func (h *Handler) handleUsage(c *gin.Context) {
	addr := c.Param("address")
	if !common.IsHexAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest", "detail": "address is not a hex address"})
		return
	}
	user := common.HexToAddress(addr).Hex()
	ctx := c.Request.Context()

	entries, err := h.usage.Entries(ctx, user, 100)
	if err != nil {
		h.log.Error("usage entries", zap.String("user", user), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	consumed, err := h.usage.ConsumedCredits(ctx, user)
	if err != nil {
		h.log.Error("usage consumed", zap.String("user", user), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}
	refunds, err := h.usage.RefundCount(ctx, user)
	if err != nil {
		h.log.Error("usage refunds", zap.String("user", user), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "InternalError"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries":  entries,
		"consumed": consumed,
		"refunds":  refunds,
	})
}

// handleCreemWebhook accepts gateway events and enqueues payment failures
// for the compensation consumer. The endpoint only acknowledges durable
// enqueue; the refund itself happens asynchronously and idempotently.
func (h *Handler) handleCreemWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest"})
		return
	}

	if h.webhookSecret != "" {
		sig := c.GetHeader("creem-signature")
		if !payment.VerifySignature(body, sig, h.webhookSecret) {
			h.log.Warn("webhook signature rejected", zap.String("ip", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "InvalidSignature"})
			return
		}
	}

	ev, err := payment.ParseEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidRequest"})
		return
	}

	if ev.Type == payment.EventPaymentFailed {
		if err := h.rdb.RPush(c.Request.Context(), payment.CompensationQueueKey, string(body)).Err(); err != nil {
			// Creem retries on non-2xx; failing here keeps the event alive.
			h.log.Error("enqueue compensation event", zap.String("payment", ev.PaymentRef), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "EnqueueFailed"})
			return
		}
		h.log.Info("payment failure enqueued for compensation",
			zap.String("payment", ev.PaymentRef),
			zap.String("reservation", ev.Metadata.ReservationID),
		)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
