// Package registry holds the static mapping of HuggingFace usernames to
// API tokens. It is built once at startup from the HF_USER configuration
// string and is read-only afterwards, so it may be shared freely across
// concurrent requests.
package registry

import "strings"

// Credential is a single configured username with its optional API token.
type Credential struct {
	Username string
	Token    string // empty means public-only access
}

// Registry is an ordered, immutable set of upstream credentials.
type Registry struct {
	usernames []string
	tokens    map[string]string
}

// Parse builds a Registry from a comma-separated list of
// "username[:token]" pairs. Fields are whitespace-trimmed; entries with
// an empty username are skipped, and anything past a second colon is
// discarded. Usernames without a token are retained and participate in
// unauthenticated calls.
func Parse(s string) *Registry {
	r := &Registry{tokens: make(map[string]string)}
	if s == "" {
		return r
	}

	for _, pair := range strings.Split(s, ",") {
		fields := strings.Split(pair, ":")
		username := strings.TrimSpace(fields[0])
		var token string
		if len(fields) > 1 {
			token = strings.TrimSpace(fields[1])
		}
		if username == "" {
			continue
		}
		r.usernames = append(r.usernames, username)
		if token != "" {
			r.tokens[username] = token
		}
	}
	return r
}

// Usernames returns the configured usernames in configuration order.
func (r *Registry) Usernames() []string {
	out := make([]string, len(r.usernames))
	copy(out, r.usernames)
	return out
}

// TokenFor returns the API token for a username. The second return is
// false when the username has no token configured (or is unknown).
func (r *Registry) TokenFor(username string) (string, bool) {
	token, ok := r.tokens[username]
	return token, ok
}

// Len returns the number of configured usernames.
func (r *Registry) Len() int {
	return len(r.usernames)
}

// Credentials returns the registry contents in configuration order.
func (r *Registry) Credentials() []Credential {
	out := make([]Credential, 0, len(r.usernames))
	for _, u := range r.usernames {
		out = append(out, Credential{Username: u, Token: r.tokens[u]})
	}
	return out
}
