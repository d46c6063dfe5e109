package domain

import "errors"

// Errores de configuración: se detectan al registrar, nunca al evaluar.
var (
	ErrUnknownStrategy   = errors.New("unknown strategy")
	ErrDuplicateStrategy = errors.New("duplicate strategy key")
	ErrEmptySequence     = errors.New("staking sequence is empty")
	ErrInvalidPattern    = errors.New("invalid entry pattern")
	ErrInvalidRiskLevel  = errors.New("invalid risk level")
	ErrInvalidEnum       = errors.New("invalid enum value")
	ErrDuplicatePosition = errors.New("pending position already exists")
)
