package infra

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/bleach86/ghostcore-zmq/internal/adapter/transport"
)

// NewValidator returns the validator shared by every adapter config, with the
// custom tags registered.
func NewValidator() (*validator.Validate, error) {
	v := validator.New()
	if err := transport.RegisterValidations(v); err != nil {
		return nil, fmt.Errorf("infra: failed to register validations: %w", err)
	}
	return v, nil
}
