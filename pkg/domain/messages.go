package domain

import "encoding/json"

// MessageType names one message of the host <-> embedded frame protocol.
type MessageType string

const (
	// MessageReady is sent by the embedded frame once it can accept configuration.
	MessageReady MessageType = "revisitWidget/READY"
	// MessageConfig carries the JSON-stringified configuration to the embedded frame.
	MessageConfig MessageType = "revisitWidget/CONFIG"
	// MessageSequenceArray carries the list of participant sequences to the host.
	MessageSequenceArray MessageType = "revisitWidget/SEQUENCE_ARRAY"
	// MessageExportJSON carries an arbitrary JSON export blob to the host.
	MessageExportJSON MessageType = "revisitWidget/PYTHON_EXPORT_JSON"
	// MessageExportTidy carries a tidy (header + rows) export to the host.
	MessageExportTidy MessageType = "revisitWidget/PYTHON_EXPORT_TIDY"
)

// Known reports whether t is part of the protocol.
func (t MessageType) Known() bool {
	switch t {
	case MessageReady, MessageConfig, MessageSequenceArray, MessageExportJSON, MessageExportTidy:
		return true
	}
	return false
}

// Envelope is the wire form of every protocol message.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is an envelope received from the embedded frame along with its sender origin.
type Inbound struct {
	Origin   string
	ConnID   string
	Envelope Envelope
}
