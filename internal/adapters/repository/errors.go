package repository

import (
	"errors"

	"github.com/okian/oratio/internal/domain/model"
)

// Sentinel kinds for storage errors.
var (
	ErrNotFound   = model.ErrKeyNotFound
	ErrInvalidKey = errors.New("invalid key")
)
