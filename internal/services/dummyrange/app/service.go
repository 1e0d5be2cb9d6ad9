// Package app composes the dummyrange components and serves them over HTTP,
// websocket and gRPC health.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/text/language"

	apperrors "github.com/louisbranch/dummyrange/internal/platform/errors"
	"github.com/louisbranch/dummyrange/internal/platform/timeouts"
	"github.com/louisbranch/dummyrange/internal/random"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/combat"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/entity"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/profile"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/storage"
	"github.com/louisbranch/dummyrange/internal/services/dummyrange/upstream"
)

// SnapshotName is the key the current range is saved under.
const SnapshotName = "current"

// Config wires a Service. Zero values fall back to package defaults.
type Config struct {
	Profile    profile.Config
	Proxies    []upstream.Proxy
	Retry      upstream.RetryPolicy
	Cooldown   time.Duration
	HTTPClient *http.Client

	Entity entity.Config
	Tools  *combat.Registry
	// Rand drives critical rolls; nil seeds one from crypto/rand.
	Rand *rand.Rand

	Locale language.Tag

	CacheStore    storage.CacheStore
	SnapshotStore storage.SnapshotStore
}

// Service owns one range: its upstream access layer, entities, combat and
// event feed. Every transport shares the same instance.
type Service struct {
	Profiles *profile.Client
	Entities *entity.Store
	Combat   *combat.Orchestrator
	Feed     *Feed

	queue     *upstream.Queue
	status    StatusText
	snapshots storage.SnapshotStore
	now       func() time.Time
	dirty     atomic.Bool
}

// RangeSnapshot is the save/restore payload of a range.
type RangeSnapshot struct {
	Entities     []entity.Record `json:"entities"`
	NextID       int64           `json:"nextId"`
	Stats        entity.Stats    `json:"stats"`
	SelectedTool string          `json:"selectedTool"`
	SavedAt      time.Time       `json:"savedAt"`
}

// RangeStats summarizes the range for the stats endpoint.
type RangeStats struct {
	entity.Stats
	Entities        int    `json:"entities"`
	CachedLookups   int    `json:"cachedLookups"`
	PendingRequests int    `json:"pendingRequests"`
	SelectedTool    string `json:"selectedTool"`
	Subscribers     int    `json:"subscribers"`
}

// NewService builds a service. A cache backend is loaded eagerly; load
// failures are logged and the cache starts empty.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	tools := cfg.Tools
	if tools == nil {
		var err error
		tools, err = combat.DefaultRegistry()
		if err != nil {
			return nil, fmt.Errorf("load tool catalog: %w", err)
		}
	}
	rng := cfg.Rand
	if rng == nil {
		var err error
		rng, err = random.NewSeededRand()
		if err != nil {
			return nil, err
		}
	}
	if cfg.Retry == (upstream.RetryPolicy{}) {
		cfg.Retry = upstream.DefaultRetryPolicy()
	}
	if cfg.Locale == language.Und {
		cfg.Locale = language.English
	}

	s := &Service{
		Feed:      NewFeed(),
		queue:     upstream.NewQueue(cfg.Cooldown),
		status:    NewStatusText(cfg.Locale),
		snapshots: cfg.SnapshotStore,
		now:       time.Now,
	}

	cache := profile.NewCache(cfg.CacheStore)
	if err := cache.Load(ctx); err != nil {
		log.Printf("dummyrange: %v", err)
	}
	fetcher := upstream.NewFetcher(
		upstream.NewResolver(cfg.Proxies),
		cfg.Retry,
		upstream.WithHTTPClient(cfg.HTTPClient),
		upstream.WithStatusFunc(s.publishProgress),
	)
	s.Profiles = profile.NewClient(cfg.Profile, fetcher, s.queue, cache)
	s.Entities = entity.NewStore(cfg.Entity)
	s.Combat = combat.NewOrchestrator(s.Entities, tools, rng)

	s.Entities.Subscribe(func(ev entity.Event) {
		s.dirty.Store(true)
		s.Feed.Publish(string(ev.Type), ev)
	})
	return s, nil
}

func (s *Service) publishProgress(st upstream.Status) {
	log.Printf("dummyrange: upstream %s (%s) via %s, attempt %d, wait %s", st.Kind, st.Reason, st.Proxy, st.Attempt, st.Delay)
	s.Feed.Publish(FrameStatusRetry, map[string]any{
		"kind":    st.Kind,
		"reason":  st.Reason,
		"attempt": st.Attempt,
		"delayMs": st.Delay.Milliseconds(),
		"proxy":   st.Proxy,
		"message": s.status.Progress(st),
	})
}

func (s *Service) publishFailure(username string, err error) {
	s.Feed.Publish(FrameStatusError, map[string]any{
		"username": username,
		"code":     apperrors.CodeOf(err),
		"message":  s.status.Failure(username, err),
	})
}

// FetchProfile resolves a username, reporting failures on the feed.
func (s *Service) FetchProfile(ctx context.Context, username string) (profile.Profile, error) {
	p, err := s.Profiles.FetchProfile(ctx, username)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.publishFailure(username, err)
		}
		return profile.Profile{}, err
	}
	return p, nil
}

// Spawn fetches a profile and adds an entity for it, optionally placed.
func (s *Service) Spawn(ctx context.Context, username string, at *entity.Point) (entity.Entity, error) {
	p, err := s.FetchProfile(ctx, username)
	if err != nil {
		return entity.Entity{}, err
	}
	e := s.Entities.Add(p)
	if at != nil {
		if placed, ok := s.Entities.SetPosition(e.ID, *at); ok {
			e = placed
		}
	}
	return e, nil
}

// Attack hits an entity. Unknown entities and tools are NOT_FOUND errors; an
// attack on a destroyed entity is reported with applied == false.
func (s *Service) Attack(id int64, a combat.Attack) (combat.AttackResult, bool, error) {
	if _, ok := s.Entities.Get(id); !ok {
		return combat.AttackResult{}, false, entityNotFound(id)
	}
	if a.ToolID != "" {
		if _, ok := s.Combat.Tool(a.ToolID); !ok {
			return combat.AttackResult{}, false, apperrors.WithMetadata(apperrors.CodeNotFound,
				"unknown tool", map[string]string{"tool_id": a.ToolID})
		}
	}
	result, applied := s.Combat.Attack(id, a)
	return result, applied, nil
}

// SelectTool changes the default tool.
func (s *Service) SelectTool(id string) (combat.Tool, error) {
	tool, err := s.Combat.SelectTool(id)
	if err != nil {
		return combat.Tool{}, err
	}
	s.dirty.Store(true)
	s.Feed.Publish(FrameToolSelected, tool)
	return tool, nil
}

// ClearCache drops every cached profile lookup.
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.Profiles.ClearCache(ctx); err != nil {
		return err
	}
	s.Feed.Publish(FrameCacheCleared, nil)
	return nil
}

// Stats summarizes the range.
func (s *Service) Stats() RangeStats {
	return RangeStats{
		Stats:           s.Entities.Stats(),
		Entities:        s.Entities.Len(),
		CachedLookups:   s.Profiles.CacheLen(),
		PendingRequests: s.queue.Len(),
		SelectedTool:    s.Combat.SelectedTool().ID,
		Subscribers:     s.Feed.Len(),
	}
}

// Snapshot exports the range.
func (s *Service) Snapshot() RangeSnapshot {
	state := s.Entities.Export()
	return RangeSnapshot{
		Entities:     state.Entities,
		NextID:       state.NextID,
		Stats:        state.Stats,
		SelectedTool: s.Combat.SelectedTool().ID,
		SavedAt:      s.now().UTC(),
	}
}

// ImportSnapshot replaces the range. A selected tool missing from the
// current catalog keeps the current selection.
func (s *Service) ImportSnapshot(snap RangeSnapshot) error {
	err := s.Entities.Import(entity.State{
		Entities: snap.Entities,
		NextID:   snap.NextID,
		Stats:    snap.Stats,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "invalid range snapshot", err)
	}
	if snap.SelectedTool != "" {
		if _, err := s.Combat.SelectTool(snap.SelectedTool); err != nil {
			log.Printf("dummyrange: snapshot tool %q not in catalog, keeping %q", snap.SelectedTool, s.Combat.SelectedTool().ID)
		}
	}
	return nil
}

// Save persists the range snapshot. Without a snapshot store it does nothing.
func (s *Service) Save(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	snap := s.Snapshot()
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode range snapshot: %w", err)
	}
	return s.snapshots.PutSnapshot(ctx, storage.Snapshot{Name: SnapshotName, Payload: payload, SavedAt: snap.SavedAt})
}

// Restore loads the saved range, if any.
func (s *Service) Restore(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}
	saved, err := s.snapshots.GetSnapshot(ctx, SnapshotName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load range snapshot: %w", err)
	}
	var snap RangeSnapshot
	if err := json.Unmarshal(saved.Payload, &snap); err != nil {
		return fmt.Errorf("decode range snapshot: %w", err)
	}
	if err := s.ImportSnapshot(snap); err != nil {
		return err
	}
	s.dirty.Store(false)
	return nil
}

// RunAutosave saves the range every interval while it has unsaved changes,
// and once more when ctx ends.
func (s *Service) RunAutosave(ctx context.Context, interval time.Duration) {
	if s.snapshots == nil || interval <= 0 {
		<-ctx.Done()
		s.saveIfDirty()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.saveIfDirty()
			return
		case <-ticker.C:
			s.saveIfDirty()
		}
	}
}

func (s *Service) saveIfDirty() {
	if s.snapshots == nil || !s.dirty.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Persist)
	defer cancel()
	if err := s.Save(ctx); err != nil {
		s.dirty.Store(true)
		log.Printf("dummyrange: autosave: %v", err)
	}
}

func entityNotFound(id int64) error {
	return apperrors.WithMetadata(apperrors.CodeNotFound,
		fmt.Sprintf("entity %d not found", id),
		map[string]string{"entity_id": fmt.Sprint(id)})
}
