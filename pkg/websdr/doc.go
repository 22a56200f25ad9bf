// ABOUTME: Package websdr is the high-level WebSDR receiver client
// ABOUTME: Wires the four channels, the playout node and audio taps together

// Package websdr connects to a WebSDR server and feeds its audio stream into
// a playout engine.
//
// Example:
//
//	client, err := websdr.New(websdr.Config{ServerAddr: "radio.local:8073"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	out := output.NewOto()
//	out.Open(48000, 1, client.Source())
//
//	client.Start(ctx)
//	client.StartAudio()
//	client.Tune(145.5e6)
package websdr
