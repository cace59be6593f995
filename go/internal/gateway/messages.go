package gateway

import (
	"github.com/mcdev12/quizduel/go/internal/controller"
)

type MessageType string

const (
	MessageView  MessageType = "view"
	MessageFrame MessageType = "frame"
	MessageAck   MessageType = "ack"
	MessageError MessageType = "error"
)

// ClientMessage is an action sent by the browser. Ref is echoed back on the
// ack or error so the client can match replies.
type ClientMessage struct {
	controller.Action
	Ref string `json:"ref,omitempty"`
}

type ServerMessage struct {
	Type  MessageType           `json:"type"`
	Ref   string                `json:"ref,omitempty"`
	View  *controller.ViewToken `json:"view,omitempty"`
	Path  string                `json:"path,omitempty"`
	Frame *controller.Frame     `json:"frame,omitempty"`
	Error string                `json:"error,omitempty"`
}
