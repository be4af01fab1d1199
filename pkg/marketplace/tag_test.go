package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTag_RoundTrip(t *testing.T) {
	tests := []string{"worker_1", "gpu_10", "a", ""}
	for _, tag := range tests {
		wire := EncodeTag(tag, tagWireWidth)
		decoded, err := DecodeTag(wire)
		require.NoError(t, err)
		assert.Equal(t, tag, decoded)
	}
}

func TestDecodeTag_StripsOnlyTrailingNUL(t *testing.T) {
	decoded, err := DecodeTag(EncodeTag("worker_1", 16))
	require.NoError(t, err)
	assert.Equal(t, "worker_1", decoded)
}

func TestDecodeTag_InvalidBase64(t *testing.T) {
	_, err := DecodeTag("not valid base64!!")
	assert.Error(t, err)
}
