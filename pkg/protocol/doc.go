// ABOUTME: WebSDR wire protocol package
// ABOUTME: Defines binary frame layouts and control channel messages
// Package protocol implements the WebSDR wire formats.
//
// Binary frames (spectrum, waterfall, audio) are little-endian fixed headers
// followed by a counted element array. The control channel carries flat JSON
// objects tagged by "type". Both directions decode into closed sets of types:
// Frame and ControlMessage.
//
// Example:
//
//	frame, err := protocol.Decode(protocol.ChannelAudio, data)
//	if audio, ok := frame.(protocol.AudioFrame); ok {
//	    engine.Write(audio)
//	}
package protocol
