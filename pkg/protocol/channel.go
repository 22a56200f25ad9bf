// ABOUTME: Channel kinds multiplexed by a WebSDR server
// ABOUTME: Maps each kind to its name and default websocket path
package protocol

import "fmt"

// ChannelKind identifies one of the streaming connections a client holds
type ChannelKind int

const (
	ChannelSpectrum ChannelKind = iota
	ChannelWaterfall
	ChannelAudio
	ChannelControl
)

// AllChannels lists every channel kind in dial order
var AllChannels = []ChannelKind{ChannelSpectrum, ChannelWaterfall, ChannelAudio, ChannelControl}

func (k ChannelKind) String() string {
	switch k {
	case ChannelSpectrum:
		return "spectrum"
	case ChannelWaterfall:
		return "waterfall"
	case ChannelAudio:
		return "audio"
	case ChannelControl:
		return "control"
	default:
		return fmt.Sprintf("channel(%d)", int(k))
	}
}

// Path returns the default server path for the channel
func (k ChannelKind) Path() string {
	return "/ws/" + k.String()
}

// ParseChannelKind converts a channel name back to its kind
func ParseChannelKind(name string) (ChannelKind, error) {
	for _, k := range AllChannels {
		if k.String() == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", name)
}
