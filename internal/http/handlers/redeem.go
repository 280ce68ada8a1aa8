package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"pinredeem/internal/domain"
	"pinredeem/internal/infra/logging"
)

// Redeemer runs a redemption and always reports an outcome.
type Redeemer interface {
	Redeem(ctx context.Context, req domain.RedemptionRequest) domain.RedemptionResult
}

// Redeem handles POST /redeem. Invalid input is rejected with 400; every
// redemption outcome, failed or not, is reported with 200.
func Redeem(r Redeemer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req domain.RedemptionRequest
		if err := c.App().Config().JSONDecoder(c.Body(), &req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid JSON body")
		}
		if err := req.Validate(); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		logging.Info("Redemption requested",
			"player_id", req.PlayerID,
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		)
		return c.JSON(r.Redeem(c.UserContext(), req))
	}
}
