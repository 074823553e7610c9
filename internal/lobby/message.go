// Package lobby implements the lobby collaborator: a websocket hub that seats
// peers into lobbies, relays lobby chat and WebRTC signaling, and a client
// that exposes the hub's view of the current lobby to the session.
package lobby

import (
	"encoding/json"

	"github.com/1ureka/lobbynet/internal/protocol"
)

// messageType identifies the kind of hub message.
type messageType string

const (
	// client → hub
	msgHello  messageType = "hello"
	msgCreate messageType = "create"
	msgJoin   messageType = "join"
	msgLeave  messageType = "leave"
	msgList   messageType = "list"
	msgNick   messageType = "nick"

	// both directions
	msgChat   messageType = "chat"
	msgSignal messageType = "signal"

	// hub → client
	msgWelcome messageType = "welcome"
	msgEntered messageType = "entered"
	msgLeft    messageType = "left"
	msgRoster  messageType = "roster"
	msgLobbies messageType = "lobbies"
	msgError   messageType = "error"
)

// message is the JSON structure exchanged over the websocket.
type message struct {
	Type    messageType      `json:"type"`
	Lobby   protocol.LobbyID `json:"lobby,omitempty"`
	Peer    protocol.PeerID  `json:"peer,omitempty"`
	To      protocol.PeerID  `json:"to,omitempty"`
	Name    string           `json:"name,omitempty"`
	Text    string           `json:"text,omitempty"`
	Max     int              `json:"max,omitempty"`
	Lobbies []Info           `json:"lobbies,omitempty"`
	Members []Member         `json:"members,omitempty"`
	Signal  json.RawMessage  `json:"signal,omitempty"`
}

// Info describes one open lobby in a listing.
type Info struct {
	Lobby     protocol.LobbyID `json:"lobby"`
	Owner     protocol.PeerID  `json:"owner"`
	OwnerName string           `json:"owner_name"`
	Members   int              `json:"members"`
	Max       int              `json:"max"`
}

// Member is one seat in a lobby roster.
type Member struct {
	Peer protocol.PeerID `json:"peer"`
	Name string          `json:"name"`
}
