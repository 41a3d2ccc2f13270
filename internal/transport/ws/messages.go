package ws

import "encoding/json"

// Message types on the wire.
const (
	TypeMove       = "move"
	TypeActivate   = "activate"
	TypeDeactivate = "deactivate"

	TypeWelcome  = "welcome"
	TypeMovement = "movement"
	TypeError    = "error"
)

// Message is the single envelope used in both directions. Inbound messages
// carry Type plus either X/Y or Ability; outbound messages fill the fields
// relevant to their type. A missing coordinate is zero.
type Message struct {
	Type      string   `json:"type"`
	X         float64  `json:"x,omitempty"`
	Y         float64  `json:"y,omitempty"`
	Ability   string   `json:"ability,omitempty"`
	Message   string   `json:"message,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	Abilities []string `json:"abilities,omitempty"`
}

func movementMessage(x, y float64) Message {
	return Message{Type: TypeMovement, X: x, Y: y}
}

func errorMessage(text string) Message {
	return Message{Type: TypeError, Message: text}
}

func encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}
