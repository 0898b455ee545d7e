package command

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONCodec_WireFormat(t *testing.T) {
	data, err := JSONCodec{}.Marshal(Activate(3072))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ligado": true, "slider": 3072}`, string(data))
}

func TestCBORCodec_Keys(t *testing.T) {
	data, err := CBORCodec{}.Marshal(Activate(2048))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.Equal(t, true, decoded["ligado"])
	assert.EqualValues(t, 2048, decoded["slider"])
}

func TestCodecFor(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{name: "", wantName: FormatJSON},
		{name: "json", wantName: FormatJSON},
		{name: "cbor", wantName: FormatCBOR},
		{name: "xml", wantErr: true},
	}

	for _, tt := range tests {
		c, err := CodecFor(tt.name)
		if tt.wantErr {
			assert.Error(t, err, "format %q", tt.name)
			continue
		}
		require.NoError(t, err, "format %q", tt.name)
		assert.Equal(t, tt.wantName, c.Name())
	}
}

func TestActivate(t *testing.T) {
	c := Activate(4095)
	assert.True(t, c.On)
	assert.Equal(t, 4095, c.Slider)

	var round Command
	data, _ := json.Marshal(c)
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, c, round)
}
