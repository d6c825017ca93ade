// Package bridge connects the transfer core to external renderers and
// scanners over WebSocket. Renderers receive every published wire string and
// turn it into a visual symbol; scanners report the candidate strings they
// decoded from each captured frame.
package bridge

// MessageType identifies the kind of bridge message.
type MessageType string

const (
	MsgTypeHello  MessageType = "hello"  // server → client, after registration
	MsgTypePacket MessageType = "packet" // server → renderer
	MsgTypeFrame  MessageType = "frame"  // scanner → server
)

// Message is the JSON structure exchanged over the bridge.
type Message struct {
	Type       MessageType `json:"type"`
	ClientID   string      `json:"clientId,omitempty"`
	Seq        uint64      `json:"seq,omitempty"`
	Data       string      `json:"data,omitempty"`       // one wire string
	Candidates []string    `json:"candidates,omitempty"` // zero or more wire strings from one frame
}
