package wireformat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPluginCallRequest_Payload(t *testing.T) {
	req := PluginCallRequest{ID: "math", Function: "add", Args: []byte{1, 2, 3}}

	b, err := MarshalPayload(req)
	require.NoError(t, err)

	var got PluginCallRequest
	require.NoError(t, UnmarshalPayload(b, &got))
	assert.Equal(t, req, got)
}

func TestUnmarshalPayload_Invalid(t *testing.T) {
	var rec LogRecord
	err := UnmarshalPayload([]byte{0xc1}, &rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal *wireformat.LogRecord")
}
