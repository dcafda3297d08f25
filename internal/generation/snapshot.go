package generation

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Phase is the normalized lifecycle phase of a remote generation job
type Phase string

// Possible phase values
const (
	PhasePending    Phase = "pending"
	PhaseGenerating Phase = "generating"
	PhaseSuccess    Phase = "success"
	PhaseFailure    Phase = "failure"
)

// IsTerminal reports whether the phase ends polling on its own.
// Success only ends polling when the snapshot also carries a usable URL.
func (p Phase) IsTerminal() bool {
	return p == PhaseSuccess || p == PhaseFailure
}

// CharacterRef identifies the chat character a generation belongs to.
// Both fields are optional.
type CharacterRef struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

// UnmarshalJSON accepts the character id as either a JSON string or a number.
func (c *CharacterRef) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return ErrInvalidPayload
	}
	parsed := gjson.ParseBytes(data)
	if parsed.Type == gjson.Null {
		return nil
	}
	c.Name = parsed.Get("name").String()
	if id := parsed.Get("id"); id.Exists() && id.Type != gjson.Null {
		c.ID = id.String()
	}
	return nil
}

// IsZero reports whether neither name nor id is set
func (c *CharacterRef) IsZero() bool {
	return c == nil || (c.Name == "" && c.ID == "")
}

// StatusSnapshot is the normalized view of one status poll.
// It is produced fresh for every poll and never mutated afterwards.
type StatusSnapshot struct {
	Phase Phase

	// RawProgress is the worker-reported progress percentage, nil when absent
	RawProgress *float64

	// ResultURL is the generated image location, empty until the job succeeds
	ResultURL string

	// GenerationTimeSeconds is how long the worker spent, nil when absent
	GenerationTimeSeconds *float64

	// ErrorText is the worker's failure description, if any
	ErrorText string
}

// HasUsableResult reports whether the snapshot carries a result URL the UI can load
func (s StatusSnapshot) HasUsableResult() bool {
	return IsUsableResultURL(s.ResultURL)
}

// IsUsableResultURL accepts absolute http(s) URLs and data URIs.
func IsUsableResultURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if strings.HasPrefix(raw, "data:image/") {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
