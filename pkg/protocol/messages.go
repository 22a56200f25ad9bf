// ABOUTME: WebSDR control channel message definitions
// ABOUTME: Flat JSON objects tagged by "type", decoded into a closed set of structs
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Control message type tags
const (
	TypeSDRControl       = "sdr_control"
	TypeDemodControl     = "demod_control"
	TypePing             = "ping"
	TypeConnectionStatus = "connection_status"
	TypeStatusUpdate     = "status_update"
	TypeError            = "error"
	TypeServerDisconnect = "server_disconnect"
)

// SDR control actions
const (
	ActionStart        = "start"
	ActionStop         = "stop"
	ActionSetFrequency = "set_frequency"
	ActionSetGain      = "set_gain"
)

// Limits accepted by the receiver
const (
	MaxFrequency   = 2000e6
	MaxSampleRate  = 3.2e6
	MaxBandwidth   = 200000
	MaxGain        = 50.0
	MaxDeviceIndex = 10
)

// DemodModes lists the demodulation modes the receiver understands
var DemodModes = []string{"AM", "FM", "USB", "LSB", "CW", "SPECTRUM"}

// ControlMessage is a decoded control channel message. Implementations are the
// structs in this file; type switches over them are exhaustive.
type ControlMessage interface {
	ControlType() string
	isControl()
}

// SDRConfig tunes the receiver when starting it
type SDRConfig struct {
	Frequency   float64 `json:"frequency"`
	Gain        float64 `json:"gain"`
	SampleRate  float64 `json:"sample_rate"`
	DeviceIndex int     `json:"device_index"`
}

// SDRControl starts, stops or retunes the receiver
type SDRControl struct {
	Action    string     `json:"action"`
	Config    *SDRConfig `json:"config,omitempty"`
	Frequency float64    `json:"frequency,omitempty"`
	Gain      *float64   `json:"gain,omitempty"`
}

// DemodControl selects the demodulator
type DemodControl struct {
	Mode      string `json:"mode"`
	Bandwidth int    `json:"bandwidth,omitempty"`
}

// Ping is a keepalive in either direction
type Ping struct {
	Timestamp float64 `json:"timestamp"`
}

// ConnectionStatus is sent by the server right after a channel is accepted
type ConnectionStatus struct {
	Status     string   `json:"status"`
	StreamType string   `json:"stream_type"`
	ClientID   ClientID `json:"client_id"`
}

// ClientID is the server's name for a connection. Servers send it as either
// a JSON string or a JSON number; it always encodes as a string.
type ClientID string

func (id *ClientID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ClientID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("client_id: %w", err)
	}
	*id = ClientID(n.String())
	return nil
}

// StatusUpdate carries receiver status; the data object is server-defined
type StatusUpdate struct {
	Data      json.RawMessage `json:"data"`
	Timestamp float64         `json:"timestamp"`
}

// ServerError reports a server-side failure
type ServerError struct {
	ErrorType string  `json:"error_type"`
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// ServerDisconnect announces a server shutdown
type ServerDisconnect struct {
	Message   string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

func (SDRControl) ControlType() string       { return TypeSDRControl }
func (DemodControl) ControlType() string     { return TypeDemodControl }
func (Ping) ControlType() string             { return TypePing }
func (ConnectionStatus) ControlType() string { return TypeConnectionStatus }
func (StatusUpdate) ControlType() string     { return TypeStatusUpdate }
func (ServerError) ControlType() string      { return TypeError }
func (ServerDisconnect) ControlType() string { return TypeServerDisconnect }

func (SDRControl) isControl()       {}
func (DemodControl) isControl()     {}
func (Ping) isControl()             {}
func (ConnectionStatus) isControl() {}
func (StatusUpdate) isControl()     {}
func (ServerError) isControl()      {}
func (ServerDisconnect) isControl() {}

// ParseControl decodes a text payload into its concrete message type
func ParseControl(data []byte) (ControlMessage, error) {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return nil, newError(ErrMalformed, ChannelControl, "%v", err)
	}

	var msg ControlMessage
	var err error
	switch tag.Type {
	case TypeSDRControl:
		msg, err = unmarshalAs[SDRControl](data)
	case TypeDemodControl:
		msg, err = unmarshalAs[DemodControl](data)
	case TypePing:
		msg, err = unmarshalAs[Ping](data)
	case TypeConnectionStatus:
		msg, err = unmarshalAs[ConnectionStatus](data)
	case TypeStatusUpdate:
		msg, err = unmarshalAs[StatusUpdate](data)
	case TypeError:
		msg, err = unmarshalAs[ServerError](data)
	case TypeServerDisconnect:
		msg, err = unmarshalAs[ServerDisconnect](data)
	case "":
		return nil, newError(ErrMalformed, ChannelControl, "missing type tag")
	default:
		return nil, newError(ErrUnknownType, ChannelControl, "%q", tag.Type)
	}
	if err != nil {
		return nil, newError(ErrMalformed, ChannelControl, "%s: %v", tag.Type, err)
	}
	return msg, nil
}

func unmarshalAs[T ControlMessage](data []byte) (ControlMessage, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeControl serializes a message as a flat JSON object with its type tag first
func EncodeControl(msg ControlMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("encode control: nil message")
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.ControlType(), err)
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	tag, _ := json.Marshal(msg.ControlType())
	buf.Write(tag)
	if inner := bytes.TrimSpace(body[1 : len(body)-1]); len(inner) > 0 {
		buf.WriteByte(',')
		buf.Write(inner)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// NormalizeDemodMode upper-cases mode and checks it against DemodModes
func NormalizeDemodMode(mode string) (string, error) {
	m := strings.ToUpper(strings.TrimSpace(mode))
	for _, valid := range DemodModes {
		if m == valid {
			return m, nil
		}
	}
	return "", fmt.Errorf("mode must be one of %v, got %q", DemodModes, mode)
}

// Validate checks the receiver configuration against the device limits
func (c SDRConfig) Validate() error {
	if c.Frequency <= 0 || c.Frequency > MaxFrequency {
		return fmt.Errorf("frequency %.0f Hz out of range (0, %.0f]", c.Frequency, MaxFrequency)
	}
	if c.SampleRate <= 0 || c.SampleRate > MaxSampleRate {
		return fmt.Errorf("sample rate %.0f out of range (0, %.0f]", c.SampleRate, MaxSampleRate)
	}
	if c.DeviceIndex < 0 || c.DeviceIndex > MaxDeviceIndex {
		return fmt.Errorf("device index %d out of range [0, %d]", c.DeviceIndex, MaxDeviceIndex)
	}
	return nil
}

// ClampGain limits an SDR gain in dB to what the tuner accepts
func ClampGain(gain float64) float64 {
	if gain < 0 || gain != gain {
		return 0
	}
	if gain > MaxGain {
		return MaxGain
	}
	return gain
}
