package chat

import (
	"net/url"
	"strings"
	"time"
)

// Kind identifies who authored a message
type Kind string

// Possible message kinds
const (
	KindUser      Kind = "user"
	KindAssistant Kind = "assistant"
)

// Message is one chat turn as held by a conversation view.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`

	// ImageURL is attached once the message's generation resolves
	ImageURL string `json:"image_url,omitempty"`

	GenerationTimeSeconds *float64 `json:"generation_time_seconds,omitempty"`
}

// NormalizeImageURL strips the query and fragment so cache-busting variants
// of one image compare equal. Unparsable input is returned trimmed.
func NormalizeImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

func (m Message) normalizedURL() string {
	return NormalizeImageURL(m.ImageURL)
}

// fillFrom copies fields from other that m lacks
func (m Message) fillFrom(other Message) Message {
	if m.ID == "" {
		m.ID = other.ID
	}
	if m.Kind == "" {
		m.Kind = other.Kind
	}
	if m.Text == "" {
		m.Text = other.Text
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = other.CreatedAt
	}
	if m.ImageURL == "" {
		m.ImageURL = other.ImageURL
	}
	if m.GenerationTimeSeconds == nil {
		m.GenerationTimeSeconds = other.GenerationTimeSeconds
	}
	return m
}
