package transport

import (
	"github.com/bleach86/ghostcore-zmq/internal/core/entity"
	"github.com/go-playground/validator/v10"
)

// Config holds the settings of one ZMQ SUB connection.
//
// Endpoint is the node's zmqpub* address (e.g. tcp://127.0.0.1:28332). Topics
// restricts the subscription; an empty list subscribes to everything the
// endpoint publishes.
type Config struct {
	Endpoint                  string   `validate:"required,uri"`
	Topics                    []string `validate:"dive,zmqtopic"`
	DialMaxRetryAttempts      int      `validate:"gte=0"`
	DialRetryInitialBackoffMS int      `validate:"gte=0"`
	DialRetryMaxBackoffMS     int      `validate:"gte=0"`
	DialRetryJitter           float64  `validate:"gte=0,lte=1"`
	DeliveryBuffer            int      `validate:"gte=0"`
}

// RegisterValidations installs the "zmqtopic" tag, which accepts only names
// known to the topic registry.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("zmqtopic", func(fl validator.FieldLevel) bool {
		_, ok := entity.ShapeFor(fl.Field().String())
		return ok
	})
}
