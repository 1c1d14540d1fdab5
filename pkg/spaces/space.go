// Package spaces holds the aggregated space inventory: the Space
// record, the TTL cache it lives in, and the aggregator that rebuilds
// it from upstream.
package spaces

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hfgate/hfgate/pkg/hub"
)

// unknown is the placeholder for metadata the upstream did not supply.
const unknown = "unknown"

// Space is one aggregated space record. Token is the owning
// credential's API token; it is excluded from JSON marshalling so it
// can never cross the system boundary, while internal consumers (the
// restart/rebuild handlers) still read it from the cache.
type Space struct {
	RepoID       string   `json:"repo_id"`
	Name         string   `json:"name"`
	Owner        string   `json:"owner"`
	Username     string   `json:"username"`
	URL          string   `json:"url"`
	Status       string   `json:"status"`
	LastModified string   `json:"last_modified"`
	CreatedAt    string   `json:"created_at"`
	SDK          string   `json:"sdk"`
	Tags         []string `json:"tags"`
	Private      bool     `json:"private"`
	AppPort      string   `json:"app_port"`

	Token string `json:"-"`
}

// IsRunning reports whether the space's runtime stage is "running",
// matched case-insensitively.
func (s Space) IsRunning() bool {
	return strings.EqualFold(s.Status, "running")
}

// FromDetail builds a Space record from an upstream detail response,
// attaching the configured username and token it was discovered under.
func FromDetail(detail *hub.SpaceDetail, username, token string) Space {
	name := detail.CardData.Title
	if name == "" {
		if _, repoName, ok := strings.Cut(detail.ID, "/"); ok {
			name = repoName
		} else {
			name = detail.ID
		}
	}

	_, repoName, _ := strings.Cut(detail.ID, "/")

	sp := Space{
		RepoID:       detail.ID,
		Name:         name,
		Owner:        detail.Author,
		Username:     username,
		URL:          fmt.Sprintf("https://%s-%s.hf.space", detail.Author, repoName),
		Status:       orUnknown(detail.Runtime.Stage),
		LastModified: orUnknown(detail.LastModified),
		CreatedAt:    orUnknown(detail.CreatedAt),
		SDK:          orUnknown(detail.SDK),
		Tags:         detail.Tags,
		Private:      detail.Private,
		AppPort:      formatAppPort(detail.CardData.AppPort),
		Token:        token,
	}
	if sp.Tags == nil {
		sp.Tags = []string{}
	}
	return sp
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

// formatAppPort normalizes the card-data app_port value, which arrives
// as a JSON number or string depending on how the card was authored.
func formatAppPort(v any) string {
	switch port := v.(type) {
	case nil:
		return unknown
	case float64:
		return strconv.Itoa(int(port))
	case string:
		if port == "" {
			return unknown
		}
		return port
	default:
		return fmt.Sprintf("%v", port)
	}
}
