package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("tool arguments violate schema")
	ErrValidation      = errors.New("validation failed")
)
