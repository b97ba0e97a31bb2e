package utils

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// NewID returns a unique connection identifier.
func NewID() string {
	return uuid.NewString()
}

// RandomColor returns a display color in the hsl() notation used by clients.
func RandomColor() string {
	return fmt.Sprintf("hsl(%d, 70%%, 60%%)", rand.IntN(361))
}
