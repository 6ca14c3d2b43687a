package store

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lpopResult(val string) *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	cmd.SetVal(val)
	return cmd
}

func lpopEmpty() *redis.StringCmd {
	cmd := redis.NewStringCmd(context.Background())
	cmd.SetErr(redis.Nil)
	return cmd
}

func TestDrainedKeepsAllPayloads(t *testing.T) {
	batch, err := drained([]string{"p1"}, []*redis.StringCmd{
		lpopResult("p2"),
		lpopResult("p3"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2", "p3"}, batch)
}

// A push from another client can land between two pipelined pops, so a nil
// slot may be followed by a hit. That hit already removed the payload from
// Redis; dropping it would lose the payment.
func TestDrainedKeepsPayloadBehindEmptySlot(t *testing.T) {
	batch, err := drained([]string{"p1"}, []*redis.StringCmd{
		lpopEmpty(),
		lpopResult("p2"),
		lpopEmpty(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, batch)
}

func TestDrainedEmptyRound(t *testing.T) {
	batch, err := drained([]string{"p1"}, []*redis.StringCmd{
		lpopEmpty(),
		lpopEmpty(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, batch)
}

func TestDrainedPropagatesErrors(t *testing.T) {
	broken := redis.NewStringCmd(context.Background())
	broken.SetErr(errors.New("connection reset"))

	_, err := drained([]string{"p1"}, []*redis.StringCmd{
		lpopResult("p2"),
		broken,
	})
	require.Error(t, err)
}
