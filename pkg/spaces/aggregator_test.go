package spaces

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfgate/hfgate/pkg/hub"
	"github.com/hfgate/hfgate/pkg/registry"
)

// fakeHub is an in-memory HubClient for aggregator tests.
type fakeHub struct {
	mu sync.Mutex

	listings map[string][]hub.SpaceRef // author -> refs
	details  map[string]*hub.SpaceDetail
	listErr  map[string]error
	infoErr  map[string]error

	listCalls atomic.Int64
	delay     time.Duration
	gate      chan struct{} // when set, ListSpaces blocks until closed
}

func (f *fakeHub) ListSpaces(_ context.Context, author, _ string) ([]hub.SpaceRef, error) {
	f.listCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[author]; err != nil {
		return nil, err
	}
	return f.listings[author], nil
}

func (f *fakeHub) SpaceInfo(_ context.Context, repoID, _ string) (*hub.SpaceDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.infoErr[repoID]; err != nil {
		return nil, err
	}
	detail, ok := f.details[repoID]
	if !ok {
		return nil, &hub.APIError{StatusCode: 404}
	}
	return detail, nil
}

func detailFor(id, stage string) *hub.SpaceDetail {
	d := &hub.SpaceDetail{ID: id}
	d.Author, _, _ = strings.Cut(id, "/")
	d.Runtime.Stage = stage
	return d
}

func TestRefreshAggregatesAcrossUsers(t *testing.T) {
	fake := &fakeHub{
		listings: map[string][]hub.SpaceRef{
			"alice": {{ID: "alice/app1"}},
			"bob":   {},
		},
		details: map[string]*hub.SpaceDetail{
			"alice/app1": detailFor("alice/app1", "RUNNING"),
		},
	}
	cache := NewCache(DefaultTTL)
	agg := NewAggregator(registry.Parse("alice:TOKEN_A,bob"), fake, cache, nil)

	records, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	sp := records[0]
	assert.Equal(t, "alice/app1", sp.RepoID)
	assert.Equal(t, "alice", sp.Username)
	assert.Equal(t, "TOKEN_A", sp.Token, "owning token retained internally")

	cached, ok := cache.Find("alice/app1")
	require.True(t, ok)
	assert.Equal(t, "TOKEN_A", cached.Token)
	assert.False(t, cache.IsStale())
}

func TestRefreshToleratesPerUserFailure(t *testing.T) {
	fake := &fakeHub{
		listings: map[string][]hub.SpaceRef{
			"alice": {{ID: "alice/app1"}},
		},
		details: map[string]*hub.SpaceDetail{
			"alice/app1": detailFor("alice/app1", "RUNNING"),
		},
		listErr: map[string]error{
			"bob": errors.New("listing exploded"),
		},
	}
	cache := NewCache(DefaultTTL)
	agg := NewAggregator(registry.Parse("bob:TOKEN_B,alice:TOKEN_A"), fake, cache, nil)

	records, err := agg.Refresh(context.Background())
	require.NoError(t, err, "a failed username must not fail the cycle")
	require.Len(t, records, 1)
	assert.Equal(t, "alice/app1", records[0].RepoID)
}

func TestRefreshToleratesPerSpaceFailure(t *testing.T) {
	fake := &fakeHub{
		listings: map[string][]hub.SpaceRef{
			"alice": {{ID: "alice/app1"}, {ID: "alice/broken"}},
		},
		details: map[string]*hub.SpaceDetail{
			"alice/app1": detailFor("alice/app1", "RUNNING"),
		},
		infoErr: map[string]error{
			"alice/broken": &hub.APIError{StatusCode: 500},
		},
	}
	cache := NewCache(DefaultTTL)
	agg := NewAggregator(registry.Parse("alice:TOKEN_A"), fake, cache, nil)

	records, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1, "the failing space is skipped, the rest survive")
	assert.Equal(t, "alice/app1", records[0].RepoID)
}

func TestRefreshSortsByName(t *testing.T) {
	zebra := detailFor("alice/zebra", "RUNNING")
	zebra.CardData.Title = "Zebra"
	anchovy := detailFor("alice/anchovy", "RUNNING")
	anchovy.CardData.Title = "anchovy"
	mango := detailFor("alice/mango", "RUNNING")
	mango.CardData.Title = "Mango"

	fake := &fakeHub{
		listings: map[string][]hub.SpaceRef{
			"alice": {{ID: "alice/zebra"}, {ID: "alice/anchovy"}, {ID: "alice/mango"}},
		},
		details: map[string]*hub.SpaceDetail{
			"alice/zebra":   zebra,
			"alice/anchovy": anchovy,
			"alice/mango":   mango,
		},
	}
	agg := NewAggregator(registry.Parse("alice:T"), fake, NewCache(DefaultTTL), nil)

	records, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	// Collation is case-insensitive, unlike a plain byte sort.
	assert.Equal(t, []string{"anchovy", "Mango", "Zebra"},
		[]string{records[0].Name, records[1].Name, records[2].Name})
}

func TestRefreshReplacesWholesale(t *testing.T) {
	fake := &fakeHub{
		listings: map[string][]hub.SpaceRef{
			"alice": {{ID: "alice/app1"}, {ID: "alice/app2"}},
		},
		details: map[string]*hub.SpaceDetail{
			"alice/app1": detailFor("alice/app1", "RUNNING"),
			"alice/app2": detailFor("alice/app2", "SLEEPING"),
		},
	}
	cache := NewCache(DefaultTTL)
	agg := NewAggregator(registry.Parse("alice:T"), fake, cache, nil)

	_, err := agg.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, cache.Len())

	// app2 disappears upstream; the next cycle drops it.
	fake.mu.Lock()
	fake.listings["alice"] = []hub.SpaceRef{{ID: "alice/app1"}}
	fake.mu.Unlock()

	_, err = agg.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
	_, ok := cache.Find("alice/app2")
	assert.False(t, ok)
}

func TestRefreshCoalescesConcurrentCallers(t *testing.T) {
	fake := &fakeHub{
		listings: map[string][]hub.SpaceRef{"alice": {}},
		details:  map[string]*hub.SpaceDetail{},
		delay:    50 * time.Millisecond,
	}
	agg := NewAggregator(registry.Parse("alice:T"), fake, NewCache(DefaultTTL), nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := agg.Refresh(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fake.listCalls.Load(),
		"concurrent refreshes must share one upstream fan-out")
}

func TestRefreshDetachedFromCallerContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeHub{listings: map[string][]hub.SpaceRef{"alice": {}}}
	cache := NewCache(DefaultTTL)
	agg := NewAggregator(registry.Parse("alice:T"), fake, cache, nil)

	// The shared cycle ignores the caller's cancellation; an
	// already-cancelled caller still completes it.
	_, err := agg.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, cache.IsStale())
}

func TestRefreshAbortsOnUpstreamCancellation(t *testing.T) {
	seed := []Space{{RepoID: "alice/kept", Name: "Kept", Token: "T"}}

	t.Run("cancelled listing", func(t *testing.T) {
		fake := &fakeHub{
			listErr: map[string]error{"alice": context.Canceled},
		}
		cache := NewCache(DefaultTTL)
		cache.ReplaceAll(seed)
		agg := NewAggregator(registry.Parse("alice:T"), fake, cache, nil)

		_, err := agg.Refresh(context.Background())
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, cache.Len(), "a truncated cycle must not replace the cache")
		_, ok := cache.Find("alice/kept")
		assert.True(t, ok)
	})

	t.Run("timed-out detail", func(t *testing.T) {
		fake := &fakeHub{
			listings: map[string][]hub.SpaceRef{"alice": {{ID: "alice/app1"}}},
			infoErr:  map[string]error{"alice/app1": context.DeadlineExceeded},
		}
		cache := NewCache(DefaultTTL)
		cache.ReplaceAll(seed)
		agg := NewAggregator(registry.Parse("alice:T"), fake, cache, nil)

		_, err := agg.Refresh(context.Background())
		require.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 1, cache.Len())
	})
}

func TestRefreshSurvivesLeaderDisconnect(t *testing.T) {
	fake := &fakeHub{
		listings: map[string][]hub.SpaceRef{"alice": {{ID: "alice/app1"}}},
		details:  map[string]*hub.SpaceDetail{"alice/app1": detailFor("alice/app1", "RUNNING")},
		gate:     make(chan struct{}),
	}
	cache := NewCache(DefaultTTL)
	agg := NewAggregator(registry.Parse("alice:T"), fake, cache, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	defer cancelLeader()

	leaderErr := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(leaderCtx)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return fake.listCalls.Load() == 1 },
		time.Second, time.Millisecond, "flight never started")

	followerErr := make(chan error, 1)
	go func() {
		_, err := agg.Refresh(context.Background())
		followerErr <- err
	}()
	time.Sleep(20 * time.Millisecond) // let the follower join the flight

	// Drop the leader while the shared cycle is in progress, then let
	// the cycle finish.
	cancelLeader()
	close(fake.gate)

	require.NoError(t, <-leaderErr)
	require.NoError(t, <-followerErr,
		"a live waiter must not inherit the leader's cancellation")
	assert.Equal(t, 1, cache.Len())
}

func TestFromDetailDefaults(t *testing.T) {
	d := &hub.SpaceDetail{ID: "alice/app1", Author: "alice"}

	sp := FromDetail(d, "alice", "TOKEN_A")
	assert.Equal(t, "app1", sp.Name, "name falls back to the repo half of the id")
	assert.Equal(t, "https://alice-app1.hf.space", sp.URL)
	assert.Equal(t, "unknown", sp.Status)
	assert.Equal(t, "unknown", sp.SDK)
	assert.Equal(t, "unknown", sp.LastModified)
	assert.Equal(t, "unknown", sp.CreatedAt)
	assert.Equal(t, "unknown", sp.AppPort)
	assert.NotNil(t, sp.Tags)
	assert.Empty(t, sp.Tags)
}

func TestFromDetailFull(t *testing.T) {
	d := &hub.SpaceDetail{
		ID:           "alice/app1",
		Author:       "alice",
		Private:      true,
		SDK:          "gradio",
		Tags:         []string{"demo"},
		LastModified: "2024-05-01T00:00:00.000Z",
		CreatedAt:    "2024-01-01T00:00:00.000Z",
	}
	d.Runtime.Stage = "RUNNING"
	d.CardData.Title = "My App"
	d.CardData.AppPort = float64(7860)

	sp := FromDetail(d, "alice", "TOKEN_A")
	assert.Equal(t, "My App", sp.Name)
	assert.Equal(t, "RUNNING", sp.Status)
	assert.Equal(t, "7860", sp.AppPort)
	assert.True(t, sp.Private)
	assert.Equal(t, []string{"demo"}, sp.Tags)
	assert.Equal(t, "TOKEN_A", sp.Token)
}

func TestFormatAppPort(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want string
	}{
		{nil, "unknown"},
		{float64(8080), "8080"},
		{"3000", "3000"},
		{"", "unknown"},
		{true, "true"},
	} {
		assert.Equal(t, tc.want, formatAppPort(tc.in), fmt.Sprintf("input %v", tc.in))
	}
}
