package core

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// NewInstanceID builds a unique replica identifier from hostname and a random
// suffix. Used when INSTANCE_ID is not pinned by the environment.
func NewInstanceID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "replica"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}
