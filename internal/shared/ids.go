package shared

import (
	"strings"

	"github.com/google/uuid"
)

// NewID generates a short prefixed identifier, e.g. "JOB-3F2A91BC".
func NewID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
