package amqp

import (
	"crypto/rand"
	"fmt"
)

// randomName generates a unique identifier for links and consumer tags,
// keeping the given prefix for easy filtering in broker dashboards.
func randomName(prefix string) string {
	seed := make([]byte, 4)
	_, _ = rand.Read(seed)
	return fmt.Sprintf("%s-%x", prefix, seed)
}
