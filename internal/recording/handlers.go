package recording

import (
	"errors"

	"backend-apex/internal/location"
	"backend-apex/internal/orientation"

	"github.com/gofiber/fiber/v2"
)

// Reporter receives the device's permission reports; the location gateway
// implements it.
type Reporter interface {
	Report(location.Status)
}

func RegisterRoutes(r fiber.Router, engine *Engine, reporter Reporter, authMiddleware fiber.Handler) {
	r.Post("/start", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			BikeID          string `json:"bike_id"`
			OrientationKind string `json:"orientation_kind"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if body.BikeID == "" {
			return fiber.NewError(fiber.StatusBadRequest, "bike_id required")
		}
		userID, _ := c.Locals("user_id").(string)

		err := engine.Start(c.Context(), userID, body.BikeID, orientation.Kind(body.OrientationKind))
		switch {
		case errors.Is(err, ErrAlreadyRecording):
			return fiber.NewError(fiber.StatusConflict, err.Error())
		case errors.Is(err, ErrLocationDenied):
			return fiber.NewError(fiber.StatusForbidden, err.Error())
		case err != nil:
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(engine.State())
	})

	r.Post("/pause", authMiddleware, func(c *fiber.Ctx) error {
		paused, err := engine.TogglePause(c.Context())
		if errors.Is(err, ErrNotRecording) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"is_paused": paused})
	})

	r.Post("/stop", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Save bool `json:"save"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		saved, err := engine.Stop(c.Context(), body.Save)
		if errors.Is(err, ErrNotRecording) {
			return fiber.NewError(fiber.StatusConflict, err.Error())
		}
		if err != nil {
			// Session data is intentionally retained so the client can
			// retry stop with save.
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}
		if saved == nil {
			return c.JSON(fiber.Map{"saved": false})
		}
		return c.Status(fiber.StatusCreated).JSON(saved)
	})

	r.Post("/calibrate", authMiddleware, func(c *fiber.Ctx) error {
		offset, err := engine.Calibrate(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(fiber.Map{"offset": offset})
	})

	r.Get("/state", authMiddleware, func(c *fiber.Ctx) error {
		return c.JSON(engine.State())
	})

	r.Post("/position", authMiddleware, func(c *fiber.Ctx) error {
		var fix location.Fix
		if err := c.BodyParser(&fix); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !engine.PushFix(fix) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "fix rejected")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/orientation/accelerometer", authMiddleware, func(c *fiber.Ctx) error {
		var sample orientation.Sample
		if err := c.BodyParser(&sample); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !engine.PushAccel(sample) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "sample rejected")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/orientation/devicemotion", authMiddleware, func(c *fiber.Ctx) error {
		var ev orientation.DeviceMotionEvent
		if err := c.BodyParser(&ev); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if !engine.PushDeviceMotion(ev) {
			return fiber.NewError(fiber.StatusUnprocessableEntity, "event rejected")
		}
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/permission", authMiddleware, func(c *fiber.Ctx) error {
		var body struct {
			Location string `json:"location"`
			Motion   bool   `json:"motion_granted"`
		}
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		switch location.Status(body.Location) {
		case location.StatusGranted, location.StatusDenied:
			reporter.Report(location.Status(body.Location))
		case "":
		default:
			return fiber.NewError(fiber.StatusBadRequest, "location must be granted or denied")
		}
		if body.Motion {
			engine.GrantMotionPermission()
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
