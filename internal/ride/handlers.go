package ride

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, adapter *Adapter, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "user identity required")
		}
		rides, err := adapter.List(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(rides)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		ride, err := adapter.Get(c.Context(), c.Params("id"))
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "ride not found")
		}
		return c.JSON(ride)
	})
}
