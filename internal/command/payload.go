package command

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Command is the message the lamp firmware consumes on its command topic.
type Command struct {
	On     bool `json:"ligado" cbor:"ligado"`
	Slider int  `json:"slider" cbor:"slider"`
}

// Activate returns a command that switches the lamp on at level l.
func Activate(l Level) Command {
	return Command{On: true, Slider: int(l)}
}

// Codec serializes commands for the wire.
type Codec interface {
	Name() string
	Marshal(c Command) ([]byte, error)
}

// Payload format names accepted by CodecFor.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// JSONCodec encodes commands as JSON, the format the lamp firmware expects.
type JSONCodec struct{}

func (JSONCodec) Name() string { return FormatJSON }

func (JSONCodec) Marshal(c Command) ([]byte, error) {
	return json.Marshal(c)
}

// CBORCodec encodes commands as CBOR maps with the same keys as JSON.
type CBORCodec struct{}

func (CBORCodec) Name() string { return FormatCBOR }

func (CBORCodec) Marshal(c Command) ([]byte, error) {
	return cbor.Marshal(c)
}

// CodecFor returns the codec registered under name. An empty name selects JSON.
func CodecFor(name string) (Codec, error) {
	switch name {
	case "", FormatJSON:
		return JSONCodec{}, nil
	case FormatCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown payload format %q", name)
	}
}
