package store

import (
	"time"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one fragment of a message: text, an inline image, or an inline
// video. Any subset of the fields may be set simultaneously (an image with
// a caption, for example); renderers must tolerate all combinations.
type Part struct {
	Text string `json:"text,omitempty"`

	// Inline media bytes with their MIME type. JSON marshals the
	// bytes as base64.
	ImageData []byte `json:"imageData,omitempty"`
	ImageMIME string `json:"imageMime,omitempty"`
	VideoData []byte `json:"videoData,omitempty"`
	VideoMIME string `json:"videoMime,omitempty"`
}

// Citation is a grounding source attached to a search-augmented response.
type Citation struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is a single turn in a session. The model message of a turn is
// appended as an empty placeholder at send time and its Parts are rewritten
// as content arrives.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Parts     []Part     `json:"parts"`
	PersonaID string     `json:"personaId"`
	Grounding []Citation `json:"grounding,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Session is an ordered conversation bound to one persona.
// The persona binding never changes after creation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	PersonaID string    `json:"personaId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// clone returns a deep copy so updater functions can never alias
// store-owned state.
func (s Session) clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.clone()
	}
	return out
}

func (m Message) clone() Message {
	out := m
	out.Parts = append([]Part(nil), m.Parts...)
	out.Grounding = append([]Citation(nil), m.Grounding...)
	return out
}
