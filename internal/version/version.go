// ABOUTME: Version and product identification
// ABOUTME: Reported in the websocket User-Agent and the startup log
package version

import "fmt"

const (
	Version      = "0.1.0"
	Product      = "websdr-player"
	Manufacturer = "websdr-go"
)

// UserAgent is sent on every channel handshake
func UserAgent() string {
	return fmt.Sprintf("%s/%s (%s)", Product, Version, Manufacturer)
}
