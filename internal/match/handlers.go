package match

import (
	"strconv"

	"github.com/Ayushh890/runner-app/internal/auth"
	"github.com/Ayushh890/runner-app/internal/shared/apperr"
	"github.com/Ayushh890/runner-app/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/discovery", authMiddleware, func(c *fiber.Ctx) error {
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		if errLat != nil || errLng != nil {
			return fiber.NewError(fiber.StatusBadRequest, "lat and lng required")
		}

		radius := 5.0
		if q := c.Query("radius_km"); q != "" {
			var errRadius error
			radius, errRadius = strconv.ParseFloat(q, 64)
			if errRadius != nil {
				return fiber.NewError(fiber.StatusBadRequest, "radius_km must be a number")
			}
		}
		pace, _ := strconv.ParseFloat(c.Query("pace_min_per_km"), 64)
		goal, _ := strconv.ParseFloat(c.Query("distance_goal_km"), 64)

		filter := DiscoveryFilter{
			RadiusKm:       radius,
			PaceMinPerKm:   pace,
			DistanceGoalKm: goal,
			AgeGroup:       c.Query("age_group"),
			Gender:         c.Query("gender"),
		}

		matches, err := svc.Discover(c.Context(), auth.RunnerID(c), geo.Coord{Lat: lat, Lng: lng}, filter)
		if err != nil {
			return apperr.Fiber(err)
		}
		if matches == nil {
			matches = []Match{}
		}
		return c.JSON(matches)
	})

	r.Post("/team-requests", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			ToRunnerID string `json:"to_runner_id"`
		}
		if err := c.BodyParser(&body); err != nil || body.ToRunnerID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "to_runner_id required")
		}
		req, err := svc.SendTeamRequest(c.Context(), auth.RunnerID(c), body.ToRunnerID)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	r.Post("/team-requests/:id/respond", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Accept bool `json:"accept"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		sessionID, err := svc.RespondToRequest(c.Params("id"), auth.RunnerID(c), body.Accept)
		if err != nil {
			return apperr.Fiber(err)
		}
		if sessionID == "" {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(fiber.Map{"session_id": sessionID})
	})

	r.Get("/team-requests/pending", authMiddleware, func(c *fiber.Ctx) error {
		pending := svc.ListPendingRequests(auth.RunnerID(c))
		if pending == nil {
			pending = []TeamRequest{}
		}
		return c.JSON(pending)
	})
}
