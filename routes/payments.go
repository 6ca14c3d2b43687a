// Package routes registers the submission gateway's HTTP surface: payment
// intake, the aggregate summary, purge, and health.
package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paystream/relay/store"
	"github.com/paystream/relay/task"
)

// GatewayConfig holds the collaborators the payment routes need.
type GatewayConfig struct {
	Store    store.PaymentStore
	Instance string
	LockTTL  time.Duration
	Log      *zap.Logger
}

type paymentRequest struct {
	CorrelationID string  `json:"correlationId"`
	Amount        float64 `json:"amount"`
}

type paymentResponse struct {
	Status        string `json:"status"`
	CorrelationID string `json:"correlationId"`
	Instance      string `json:"instance"`
}

// RegisterPaymentRoutes wires the gateway endpoints onto a fiber app.
func RegisterPaymentRoutes(app *fiber.App, cfg *GatewayConfig) {
	if cfg == nil || cfg.Store == nil || cfg.Log == nil {
		panic("routes: config, store, and logger are required")
	}
	st := cfg.Store
	log := cfg.Log

	// Accept a payment: take the dedup lock, then enqueue. The lock is the
	// only defense against charging a correlation ID twice, so it is taken
	// before anything else and released again if the enqueue fails.
	app.Post("/payments", func(c *fiber.Ctx) error {
		var req paymentRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "invalid payment request",
			})
		}
		if req.CorrelationID == "" || req.Amount <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "correlationId and a positive amount are required",
			})
		}

		token := uuid.NewString()
		acquired, err := st.AcquireLock(c.Context(), req.CorrelationID, token, cfg.LockTTL)
		if err != nil {
			log.Error("lock acquisition failed",
				zap.String("correlationId", req.CorrelationID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to queue payment",
			})
		}
		if !acquired {
			log.Info("payment already locked", zap.String("correlationId", req.CorrelationID))
			return c.Status(fiber.StatusConflict).JSON(paymentResponse{
				Status:        "already_locked",
				CorrelationID: req.CorrelationID,
				Instance:      cfg.Instance,
			})
		}

		t := task.New(req.CorrelationID, req.Amount, cfg.Instance, token)
		payload, err := task.Encode(t)
		if err == nil {
			err = st.Enqueue(c.Context(), req.CorrelationID, payload)
		}
		if err != nil {
			log.Error("enqueue failed",
				zap.String("correlationId", req.CorrelationID), zap.Error(err))
			if relErr := st.ReleaseLock(c.Context(), req.CorrelationID); relErr != nil {
				log.Error("lock cleanup failed",
					zap.String("correlationId", req.CorrelationID), zap.Error(relErr))
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to queue payment",
			})
		}

		log.Info("payment queued",
			zap.String("correlationId", req.CorrelationID),
			zap.Float64("amount", req.Amount))
		return c.Status(fiber.StatusAccepted).JSON(paymentResponse{
			Status:        "queued",
			CorrelationID: req.CorrelationID,
			Instance:      cfg.Instance,
		})
	})

	app.Get("/payments-summary", func(c *fiber.Ctx) error {
		summary, counts, err := st.Summary(c.Context())
		if err != nil {
			log.Error("summary read failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to retrieve summary",
			})
		}
		if accounted := counts.Processed + counts.Failed; counts.Submitted != accounted {
			log.Warn("consistency gap",
				zap.Int64("submitted", counts.Submitted),
				zap.Int64("processed", counts.Processed),
				zap.Int64("failed", counts.Failed),
				zap.Int64("pending", counts.Pending))
		}
		return c.JSON(summary)
	})

	app.Post("/purge-payments", func(c *fiber.Ctx) error {
		if err := st.Purge(c.Context()); err != nil {
			log.Error("purge failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"message": "failed to purge payments",
			})
		}
		return c.JSON(fiber.Map{"status": "purged"})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		status, storeStatus := "ok", "connected"
		if err := st.Ping(c.Context()); err != nil {
			status, storeStatus = "degraded", "error"
		}
		return c.JSON(fiber.Map{
			"status":    status,
			"instance":  cfg.Instance,
			"store":     storeStatus,
			"timestamp": time.Now().Unix(),
		})
	})
}
