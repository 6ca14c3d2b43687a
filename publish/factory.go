package publish

import (
	"fmt"
	"strings"
)

// Create builds a Publisher from a connection string. An empty string
// disables publishing.
func Create(connString string) (Publisher, error) {
	switch {
	case connString == "":
		return Noop{}, nil
	case strings.HasPrefix(connString, "redis://"), strings.HasPrefix(connString, "rediss://"):
		return NewRedisPublisher(connString)
	case strings.HasPrefix(connString, "channels://"):
		return NewChannelPublisher(), nil
	default:
		return nil, fmt.Errorf("unsupported pub/sub URL scheme: %s", connString)
	}
}
