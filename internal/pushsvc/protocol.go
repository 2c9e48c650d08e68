// Package pushsvc is a client for autopush-style push services: one
// websocket per user agent, multiplexing every subscription channel.
package pushsvc

import "encoding/json"

// MessageType is the discriminator of every frame on the connection.
type MessageType string

const (
	MessageHello        MessageType = "hello"
	MessageRegister     MessageType = "register"
	MessageUnregister   MessageType = "unregister"
	MessageNotification MessageType = "notification"
	MessageAck          MessageType = "ack"
)

// Ack codes reported back to the service.
const (
	AckDelivered      = 100
	AckDecryptFailed  = 101
	AckHandlerFailure = 102
)

// Message is the union of all frames exchanged with the push service.
type Message struct {
	MessageType  MessageType       `json:"messageType"`
	UAID         string            `json:"uaid,omitempty"`
	UseWebPush   bool              `json:"use_webpush,omitempty"`
	ChannelID    string            `json:"channelID,omitempty"`
	Key          string            `json:"key,omitempty"`
	Status       int               `json:"status,omitempty"`
	PushEndpoint string            `json:"pushEndpoint,omitempty"`
	Version      string            `json:"version,omitempty"`
	Data         string            `json:"data,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	Updates      []Update          `json:"updates,omitempty"`
}

// Update acknowledges one delivered notification.
type Update struct {
	ChannelID string `json:"channelID"`
	Version   string `json:"version"`
	Code      int    `json:"code"`
}

// Notification is a push message delivered on one channel. Data holds the
// still-encrypted body; it is empty for pushes sent without a payload.
type Notification struct {
	ChannelID string
	Version   string
	Encoding  string
	Data      []byte
}

// ParseMessage decodes one frame.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	err := json.Unmarshal(data, &msg)
	return msg, err
}
