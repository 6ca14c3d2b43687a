package store

import (
	"fmt"
	"strings"
)

// Connect creates a PaymentStore from a connection string. Redis is the
// production backend; memory:// backs tests and local development.
func Connect(connString string) (PaymentStore, error) {
	switch {
	case strings.HasPrefix(connString, "redis://"), strings.HasPrefix(connString, "rediss://"):
		return NewRedisPaymentStore(connString)
	case strings.HasPrefix(connString, "memory://"):
		return NewMemoryPaymentStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store URL: %s", connString)
	}
}
