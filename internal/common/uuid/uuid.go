package uuid

import (
	"strings"

	"github.com/google/uuid"
)

type UUID interface {
	NewUUID() string
	NewSessionCode() string
}

// DefaultUUID implements the UUID interface using the uuid package
type DefaultUUID struct{}

func New() *DefaultUUID {
	return &DefaultUUID{}
}

func (d *DefaultUUID) NewUUID() string {
	return uuid.New().String()
}

// NewSessionCode returns a short uppercase code viewers can type in.
func (d *DefaultUUID) NewSessionCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:6])
}
