// Package persona defines the assistant personas and their registry.
//
// A persona is a display identity plus the system prompt that shapes the
// model's voice. Sessions are bound to a persona at creation time and the
// binding never changes; switching persona in a frontend always creates a
// new session.
package persona

import (
	"errors"
	"fmt"
)

// ErrDuplicateID indicates two personas share the same ID.
var ErrDuplicateID = errors.New("duplicate persona ID")

// Built-in persona IDs.
const (
	IDFlagship = "HAMZAWI_5"
	IDFormal   = "HAMZAWI_45"
	IDCoder    = "HAMZAWI_4"
	IDCareful  = "HAMZAWI_35"
	IDWebCode  = "HAMZAWY_CODE"
	IDTeacher  = "TEACHER"
)

// Persona is a display identity with an attached system prompt.
// Values are immutable once registered.
type Persona struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Tagline      string `json:"tagline,omitempty"`
	Theme        string `json:"theme,omitempty"` // frontend hint: accent color or theme class
	SystemPrompt string `json:"-"`               // never serialized to clients
	Custom       bool   `json:"custom,omitempty"`
}

// Registry resolves persona IDs. Read-only after construction,
// safe for concurrent use.
type Registry struct {
	byID  map[string]Persona
	order []string
}

// Default returns the built-in persona roster.
func Default() []Persona {
	return []Persona{
		{
			ID:      IDFlagship,
			Name:    "Hamzawi 5.0",
			Tagline: "the everyday assistant",
			Theme:   "indigo",
			SystemPrompt: "You are Hamzawi 5.0, a helpful and friendly assistant. " +
				"Give informative, well-structured and creative answers. " +
				"Respond in the user's language.",
		},
		{
			ID:      IDFormal,
			Name:    "Hamzawi 4.5",
			Tagline: "formal and thorough",
			Theme:   "emerald",
			SystemPrompt: "You are Hamzawi 4.5, a formal, professional assistant with a " +
				"slightly academic tone. Provide comprehensive, detailed and " +
				"well-organized responses. Respond in the user's language.",
		},
		{
			ID:      IDCoder,
			Name:    "Hamzawi 4.0",
			Tagline: "programming and logic",
			Theme:   "blue",
			SystemPrompt: "You are Hamzawi 4.0, an assistant specialized in programming, " +
				"logic and technical topics. Prioritize accuracy, efficiency and " +
				"code examples. Respond in the user's language.",
		},
		{
			ID:      IDCareful,
			Name:    "Hamzawi 3.5",
			Tagline: "thoughtful and careful",
			Theme:   "amber",
			SystemPrompt: "You are Hamzawi 3.5, an assistant focused on being helpful and " +
				"honest. Your style is conversational and thoughtful, with attention " +
				"to safety and ethics. Respond in the user's language.",
		},
		{
			ID:      IDWebCode,
			Name:    "Hamzawy Code",
			Tagline: "one-file websites",
			Theme:   "rose",
			SystemPrompt: "You are Hamzawy Code, a web development assistant. The user " +
				"describes a website; you respond with ONLY a single complete HTML " +
				"file containing all markup, CSS in a <style> tag and JavaScript in " +
				"a <script> tag, enclosed in one ```html block. No text outside " +
				"the code block.",
		},
		{
			ID:      IDTeacher,
			Name:    "The Teacher",
			Tagline: "patient explanations",
			Theme:   "teal",
			SystemPrompt: "You are an expert educator. Explain complex topics simply and " +
				"clearly, as a patient teacher would: use analogies, step-by-step " +
				"explanations, and check for understanding. Respond in the user's " +
				"language.",
		},
	}
}

// New creates a registry from the built-in roster plus custom personas.
// Custom personas are marked Custom and may not reuse an existing ID.
func New(custom []Persona) (*Registry, error) {
	r := &Registry{byID: make(map[string]Persona)}

	for _, p := range Default() {
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}

	for _, p := range custom {
		if _, exists := r.byID[p.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, p.ID)
		}
		p.Custom = true
		r.byID[p.ID] = p
		r.order = append(r.order, p.ID)
	}

	return r, nil
}

// Get returns the persona for the given ID.
func (r *Registry) Get(id string) (Persona, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// All returns all personas in stable registration order.
func (r *Registry) All() []Persona {
	out := make([]Persona, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Fallback returns the flagship persona, used when a stored session
// references a persona that no longer exists (e.g. a deleted custom one).
func (r *Registry) Fallback() Persona {
	return r.byID[IDFlagship]
}
