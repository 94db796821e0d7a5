package http

import "github.com/gofiber/fiber/v3"

func Health(ctx fiber.Ctx) error {
	ctx.Status(fiber.StatusOK)
	_ = ctx.JSON("UP!")
	return nil
}

// Ready answers 200 while ready reports true and 503 otherwise.
func Ready(ready func() bool) fiber.Handler {
	return func(ctx fiber.Ctx) error {
		if ready == nil || !ready() {
			ctx.Status(fiber.StatusServiceUnavailable)
			_ = ctx.JSON("NOT READY")
			return nil
		}
		ctx.Status(fiber.StatusOK)
		_ = ctx.JSON("READY")
		return nil
	}
}
