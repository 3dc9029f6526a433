package events

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/memophor/scedge/internal/cache"
)

// State tracks the listener lifecycle: Initializing -> Subscribed ->
// Draining -> Stopped. Stopped is terminal.
type State int32

const (
	StateInitializing State = iota
	StateSubscribed
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSubscribed:
		return "subscribed"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Listener consumes invalidation events from a single named channel and
// drives the cache to purge matching records. A failed event never tears
// down the subscription.
type Listener struct {
	bus     Bus
	channel string
	cache   *cache.Cache

	state    atomic.Int32
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewListener builds a listener; Start begins consumption.
func NewListener(bus Bus, channel string, c *cache.Cache) *Listener {
	return &Listener{
		bus:     bus,
		channel: channel,
		cache:   c,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Listener) State() State {
	return State(l.state.Load())
}

// Start subscribes and launches the consume loop. It returns once the
// subscription is established.
func (l *Listener) Start(ctx context.Context) error {
	sub, err := l.bus.Subscribe(ctx, l.channel)
	if err != nil {
		return err
	}
	l.state.Store(int32(StateSubscribed))
	log.Info().Str("channel", l.channel).Msg("Event bus listener started")

	go l.run(ctx, sub)
	return nil
}

func (l *Listener) run(ctx context.Context, sub Subscription) {
	defer func() {
		sub.Close()
		l.state.Store(int32(StateStopped))
		close(l.doneCh)
	}()

	for {
		select {
		case <-l.stopCh:
			l.state.Store(int32(StateDraining))
			log.Info().Msg("Event bus listener shutting down")
			return
		case <-ctx.Done():
			l.state.Store(int32(StateDraining))
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				log.Warn().Msg("Event bus subscription closed")
				return
			}
			l.handle(ctx, msg.Payload)
		}
	}
}

// Stop signals shutdown and waits for the in-flight handler to finish, or
// for ctx to expire.
func (l *Listener) Stop(ctx context.Context) error {
	l.stopOnce.Do(func() { close(l.stopCh) })
	select {
	case <-l.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle dispatches one event. Errors are logged and swallowed so the
// listener keeps consuming.
func (l *Listener) handle(ctx context.Context, payload []byte) {
	event, err := Decode(payload)
	if err != nil {
		log.Error().Err(err).Bytes("payload", payload).Msg("Skipping malformed event")
		return
	}

	switch event.Type {
	case TypeSupersededBy:
		l.handleSupersededBy(ctx, event)
	case TypeRevokeCapsule:
		l.handleRevokeCapsule(ctx, event)
	case TypeInvalidateTenant:
		l.handleInvalidateTenant(ctx, event)
	case TypeUpdateTTL:
		// Recognized but deliberately unimplemented: adjusting TTLs would
		// require re-storing matching artifacts.
		log.Warn().
			Str("pattern", event.Pattern).
			Str("tenant", event.Tenant).
			Int64("new_ttl_seconds", event.NewTTLSeconds).
			Msg("UPDATE_TTL event received but not enforced")
	}
}

func (l *Listener) handleSupersededBy(ctx context.Context, event *Event) {
	log.Info().
		Str("old_hash", event.OldHash).
		Str("new_hash", event.NewHash).
		Str("tenant", event.Tenant).
		Msg("Handling SUPERSEDED_BY event")

	purged := l.purgeMatching(ctx, event.Tenant, func(record recordView) bool {
		if record.hash == event.OldHash {
			return true
		}
		for _, prov := range record.provenanceHashes {
			if prov == event.OldHash {
				return true
			}
		}
		return false
	})
	log.Info().Int("purged", purged).Msg("Purged artifacts with superseded hash")
}

func (l *Listener) handleRevokeCapsule(ctx context.Context, event *Event) {
	log.Info().
		Str("capsule_id", event.CapsuleID).
		Str("tenant", event.Tenant).
		Msg("Handling REVOKE_CAPSULE event")

	purged := l.purgeMatching(ctx, event.Tenant, func(record recordView) bool {
		for _, source := range record.provenanceSources {
			if strings.Contains(source, event.CapsuleID) {
				return true
			}
		}
		return false
	})
	log.Info().Int("purged", purged).Msg("Purged artifacts for revoked capsule")
}

func (l *Listener) handleInvalidateTenant(ctx context.Context, event *Event) {
	log.Info().Str("tenant", event.Tenant).Msg("Handling INVALIDATE_TENANT event")

	keys, err := l.cache.ScanByPattern(ctx, event.Tenant+":*")
	if err != nil {
		log.Error().Err(err).Str("tenant", event.Tenant).Msg("Tenant scan failed")
		return
	}
	purged, err := l.cache.DeleteMany(ctx, keys)
	if err != nil {
		log.Error().Err(err).Str("tenant", event.Tenant).Msg("Tenant purge failed")
		return
	}
	log.Info().Int("purged", purged).Msg("Purged all artifacts for tenant")
}

// recordView is the slice of a cached record that invalidation predicates
// inspect.
type recordView struct {
	hash              string
	provenanceHashes  []string
	provenanceSources []string
}

// purgeMatching scans the tenant keyspace and deletes records the predicate
// selects. Purging an absent key is a no-op, which keeps handlers
// idempotent under at-least-once delivery.
func (l *Listener) purgeMatching(ctx context.Context, tenant string, match func(recordView) bool) int {
	keys, err := l.cache.ScanByPattern(ctx, tenant+":*")
	if err != nil {
		log.Error().Err(err).Str("tenant", tenant).Msg("Tenant scan failed")
		return 0
	}

	purged := 0
	for _, key := range keys {
		record, err := l.cache.Get(ctx, key)
		if err != nil || record == nil {
			continue
		}

		view := recordView{hash: record.Artifact.Hash}
		for _, prov := range record.Artifact.Provenance {
			view.provenanceSources = append(view.provenanceSources, prov.Source)
			if prov.Hash != "" {
				view.provenanceHashes = append(view.provenanceHashes, prov.Hash)
			}
		}

		if match(view) {
			removed, err := l.cache.Delete(ctx, key)
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("Purge delete failed")
				continue
			}
			if removed {
				purged++
			}
		}
	}
	return purged
}
