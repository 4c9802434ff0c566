package kiseki

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// NewTraceID returns a 128-bit trace identifier as 32 lowercase hex characters.
func NewTraceID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// NewSpanID returns a 64-bit span identifier as 16 lowercase hex characters.
func NewSpanID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}
