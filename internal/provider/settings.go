// Package provider talks to the AI services that find businesses, list a
// city's neighborhoods, and write sales pitches.
package provider

import "github.com/rotisserie/eris"

// Name selects the active provider.
type Name string

const (
	// Primary is the web-grounded search provider (Perplexity).
	Primary Name = "primary"
	// Secondary is the fast inference provider (Anthropic).
	Secondary Name = "secondary"
)

// Settings carries credentials and the provider selector. It is passed to
// every call instead of being read from global state.
type Settings struct {
	Provider     Name
	PrimaryKey   string
	SecondaryKey string
}

// Active returns the selected provider, defaulting to Primary.
func (s Settings) Active() Name {
	if s.Provider == Secondary {
		return Secondary
	}
	return Primary
}

// Validate fails with ErrCredentialMissing when mining cannot start: the
// primary key is always required, the secondary one only when selected.
func (s Settings) Validate() error {
	if s.PrimaryKey == "" {
		return eris.Wrap(ErrCredentialMissing, "primary api key not configured")
	}
	if s.Active() == Secondary && s.SecondaryKey == "" {
		return eris.Wrap(ErrCredentialMissing, "secondary api key not configured")
	}
	return nil
}
