package session

import (
	"encoding/json"

	"github.com/Ayushh890/runner-app/internal/auth"
	"github.com/Ayushh890/runner-app/internal/shared/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub, authMiddleware fiber.Handler) {
	r.Post("/", authMiddleware, func(c *fiber.Ctx) error {
		var req CreateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		// the creator is always a participant
		ids := append([]string{auth.RunnerID(c)}, req.ParticipantIDs...)
		id, err := hub.CreateSession(ids)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"session_id": id})
	})

	r.Get("/:id", func(c *fiber.Ctx) error {
		snap, err := hub.Get(c.Params("id"))
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.JSON(snap)
	})

	r.Post("/:id/positions", authMiddleware, func(c *fiber.Ctx) error {
		var req SubmitRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		err := hub.SubmitPosition(c.Params("id"), auth.RunnerID(c), req.Lat, req.Lng, req.RecordedAt)
		if err != nil {
			return apperr.Fiber(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/:id/emergency", authMiddleware, func(c *fiber.Ctx) error {
		if err := hub.TriggerEmergency(c.Params("id"), auth.RunnerID(c)); err != nil {
			return apperr.Fiber(err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/:id/leave", authMiddleware, func(c *fiber.Ctx) error {
		if err := hub.Leave(c.Params("id"), auth.RunnerID(c)); err != nil {
			return apperr.Fiber(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Get("/ws/:id", authMiddleware, websocket.New(func(c *websocket.Conn) {
		runnerID, _ := c.Locals("user_id").(string)
		sub, err := hub.Subscribe(c.Params("id"), runnerID)
		if err != nil {
			payload, _ := json.Marshal(fiber.Map{"error": err.Error()})
			_ = c.WriteMessage(websocket.TextMessage, payload)
			return
		}
		defer hub.Unsubscribe(sub)

		done := make(chan struct{})
		go func() {
			for ev := range sub.Send {
				payload, _ := json.Marshal(ev)
				if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
					break
				}
			}
			// the session ended or the write failed: close the conn so the
			// read loop below unblocks
			_ = c.Close()
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		// closing the subscriber ends the writer loop
		hub.Unsubscribe(sub)
		<-done
	}))
}
