package domain

import "time"

// Credential is an opaque platform access token with its expiry instant.
// Owned exclusively by the credential provider; read-only everywhere else.
type Credential struct {
	AccessToken string
	Expiry      time.Time
}

// Valid reports whether the credential can still be used at the given
// instant. A zero credential is never valid.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.Expiry)
}

// ValidFor reports whether the credential remains usable for the whole of
// the given margin beyond now. Used to retire sessions before their token
// runs out mid-query.
func (c Credential) ValidFor(now time.Time, margin time.Duration) bool {
	return c.AccessToken != "" && now.Add(margin).Before(c.Expiry)
}
