// ABOUTME: Tests for time protocol messages
// ABOUTME: Tests decoding of requests and replies, and leap indicator handling
package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeServerTime(t *testing.T) {
	msg, err := DecodeServerTime([]byte(`{"c":12.5,"s":1700000000123.25,"e":0.5,"l":1}`))
	require.NoError(t, err)

	require.NotNil(t, msg.C)
	assert.Equal(t, 12.5, *msg.C)
	assert.Equal(t, 1700000000123.25, msg.S)
	assert.Equal(t, 0.5, msg.E)
	assert.Equal(t, LeapAddSecond, msg.L)
}

func TestDecodeServerTimeWithoutEcho(t *testing.T) {
	msg, err := DecodeServerTime([]byte(`{"s":1000,"e":0,"l":0}`))
	require.NoError(t, err)

	assert.Nil(t, msg.C)
	assert.Equal(t, LeapNoWarning, msg.L)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := DecodeServerTime([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeClientTime([]byte("{"))
	assert.Error(t, err)
}

func TestClientTimeWireFormat(t *testing.T) {
	data, err := json.Marshal(ClientTime{C: 42.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":42.5}`, string(data))
}

func TestLeapIndicator(t *testing.T) {
	tests := []struct {
		leap  LeapIndicator
		name  string
		valid bool
	}{
		{LeapNoWarning, "none", true},
		{LeapAddSecond, "insert", true},
		{LeapDelSecond, "delete", true},
		{LeapNotInSync, "unsynchronized", true},
		{LeapIndicator(7), "unknown(7)", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.leap.String())
			assert.Equal(t, tt.valid, tt.leap.Valid())
		})
	}
}
