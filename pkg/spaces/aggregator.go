package spaces

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/hfgate/hfgate/pkg/hub"
	"github.com/hfgate/hfgate/pkg/registry"
)

// HubClient is the slice of the upstream client the aggregator needs.
type HubClient interface {
	ListSpaces(ctx context.Context, author, token string) ([]hub.SpaceRef, error)
	SpaceInfo(ctx context.Context, repoID, token string) (*hub.SpaceDetail, error)
}

// Aggregator rebuilds the space inventory by fanning out to every
// configured credential. Failures are tolerated at two granularities: a
// failed listing costs that username's contribution, a failed detail
// call costs that one space. Only context cancellation aborts a cycle.
type Aggregator struct {
	registry *registry.Registry
	client   HubClient
	cache    *Cache
	logger   *slog.Logger

	group singleflight.Group
}

// NewAggregator creates an Aggregator feeding cache.
func NewAggregator(reg *registry.Registry, client HubClient, cache *Cache, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		registry: reg,
		client:   client,
		cache:    cache,
		logger:   logger.With("component", "aggregator"),
	}
}

// Refresh rebuilds the inventory and replaces the cache contents on
// success. Concurrent callers observing a stale cache coalesce into a
// single in-flight cycle and share its result, so a burst of
// stale-triggered requests causes exactly one upstream fan-out.
//
// The shared cycle runs detached from the triggering request's context:
// the flight outlives its leader, so one client disconnecting cannot
// fail the coalesced waiters whose requests are still live. The
// upstream client's own timeouts bound the detached cycle.
func (a *Aggregator) Refresh(ctx context.Context) ([]Space, error) {
	flightCtx := context.WithoutCancel(ctx)
	result, err, _ := a.group.Do("refresh", func() (any, error) {
		return a.refresh(flightCtx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Space), nil
}

func (a *Aggregator) refresh(ctx context.Context) ([]Space, error) {
	all := make([]Space, 0)

	for _, cred := range a.registry.Credentials() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if cred.Token == "" {
			a.logger.Warn("no token configured, trying public access", "username", cred.Username)
		}

		refs, err := a.client.ListSpaces(ctx, cred.Username, cred.Token)
		if err != nil {
			if cancelled(err) {
				return nil, err
			}
			a.logger.Error("listing spaces failed", "username", cred.Username, "error", err)
			continue
		}
		a.logger.Info("listed spaces", "username", cred.Username, "count", len(refs))

		for _, ref := range refs {
			detail, err := a.client.SpaceInfo(ctx, ref.ID, cred.Token)
			if err != nil {
				if cancelled(err) {
					return nil, err
				}
				a.logger.Error("fetching space detail failed", "space", ref.ID, "error", err)
				continue
			}
			all = append(all, FromDetail(detail, cred.Username, cred.Token))
		}
	}

	SortByName(all)
	a.cache.ReplaceAll(all)
	a.logger.Info("inventory refreshed", "spaces", len(all))
	return all, nil
}

// cancelled reports whether err is a context cancellation rather than
// an upstream failure. A cancelled cycle is truncated, not degraded,
// and its partial result must never replace the cache.
func cancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// SortByName orders records by display name using locale-aware
// collation.
func SortByName(records []Space) {
	col := collate.New(language.Und)
	sort.SliceStable(records, func(i, j int) bool {
		return col.CompareString(records[i].Name, records[j].Name) < 0
	})
}
