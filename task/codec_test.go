package task_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paystream/relay/task"
)

func TestDecodeStructured(t *testing.T) {
	payload := `{"correlationId":"c1","amount":100.5,"processingId":"c1:api1:123.4","timestamp":123.4,"attempts":2,"apiInstance":"api1","lockToken":"tok-1"}`

	decoded, err := task.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "c1", decoded.CorrelationID)
	assert.Equal(t, 100.5, decoded.Amount)
	assert.Equal(t, "c1:api1:123.4", decoded.ProcessingID)
	assert.Equal(t, 2, decoded.Attempts)
	assert.Equal(t, "api1", decoded.APIInstance)
	assert.Equal(t, "tok-1", decoded.LockToken)
}

func TestDecodeLegacy(t *testing.T) {
	decoded, err := task.Decode("c2|42.75")
	require.NoError(t, err)

	assert.Equal(t, "c2", decoded.CorrelationID)
	assert.Equal(t, 42.75, decoded.Amount)
	assert.Equal(t, 0, decoded.Attempts)
	assert.Empty(t, decoded.LockToken)
	assert.Contains(t, decoded.ProcessingID, "legacy:c2:")
	assert.NotZero(t, decoded.Timestamp)
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"neither format":    "not json and no separator",
		"bad legacy amount": "c3|not-a-number",
		"legacy empty id":   "|12.5",
		"json without id":   `{"amount":10}`,
		"non-object json":   `42`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := task.Decode(payload)
			assert.ErrorIs(t, err, task.ErrMalformed)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	original := task.New("c4", 19.99, "api2", "tok-4")

	payload, err := task.Encode(original)
	require.NoError(t, err)

	decoded, err := task.Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestNewDerivesProcessingID(t *testing.T) {
	created := task.New("c5", 1.0, "api3", "tok-5")

	assert.Contains(t, created.ProcessingID, "c5:api3:")
	assert.Equal(t, "api3", created.APIInstance)
	assert.NotZero(t, created.Timestamp)
	assert.Zero(t, created.Attempts)
}
