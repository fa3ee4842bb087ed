package tracking

import (
	"github.com/Ayushh890/runner-app/internal/auth"
	"github.com/Ayushh890/runner-app/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req PositionUpdate
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		runnerID := auth.RunnerID(c)
		if runnerID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing identity")
		}
		if err := svc.Ingest(runnerID, req.Lat, req.Lng, req.RecordedAt); err != nil {
			return apperr.Fiber(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/signout", authMiddleware, func(c *fiber.Ctx) error {
		runnerID := auth.RunnerID(c)
		if runnerID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing identity")
		}
		svc.SignOut(runnerID)
		return c.SendStatus(fiber.StatusNoContent)
	})
}
