// Package transport keeps one websocket connection per WebSDR channel alive.
//
// A Channel dials its URL, decodes every inbound message with the protocol
// codec and hands typed values to its callbacks. When the connection drops or
// a dial fails it waits for an exponentially growing delay and redials,
// forever, until Close. Outbound payloads sent while the connection is down
// are held in a bounded FIFO and flushed in order once it reopens.
package transport
