// ABOUTME: Wire payloads as carried by a websocket message
// ABOUTME: Encode turns frames and control messages into binary or text payloads
package protocol

import "fmt"

// PayloadType is the websocket message kind a payload travels as
type PayloadType int

const (
	PayloadBinary PayloadType = iota
	PayloadText
)

func (t PayloadType) String() string {
	if t == PayloadText {
		return "text"
	}
	return "binary"
}

// Payload is one outbound or inbound websocket message
type Payload struct {
	Type PayloadType
	Data []byte
}

// Encode serializes a Frame as binary or a ControlMessage as text
func Encode(v interface{}) (Payload, error) {
	switch m := v.(type) {
	case Frame:
		return Payload{Type: PayloadBinary, Data: EncodeFrame(m)}, nil
	case ControlMessage:
		data, err := EncodeControl(m)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Type: PayloadText, Data: data}, nil
	default:
		return Payload{}, fmt.Errorf("encode: unsupported value %T", v)
	}
}
