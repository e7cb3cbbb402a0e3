package connection

import (
	"context"
	"errors"
	"hash/maphash"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vogiaan1904/ticketbottle-lineup/internal/common/uuid"
	"github.com/vogiaan1904/ticketbottle-lineup/pkg/logger"
)

const defaultShards = 32

// ViewerKey identifies a viewer's push connection inside one session.
type ViewerKey struct {
	SessionCode string
	MemberID    int64
}

// CloseListener is told about every connection that completes, once.
type CloseListener[K comparable] func(key K, c *Connection, reason CloseReason, err error)

type Registry[K comparable] interface {
	// Subscribe registers a connection for key backed by sender. An existing
	// connection for the same key is evicted with ReasonReplaced.
	Subscribe(key K, sender Sender) (*Connection, error)
	Get(key K) (*Connection, bool)
	// GetAll returns a copy of the connections registered under group.
	GetAll(group string) map[K]*Connection
	Unsubscribe(key K) bool
	UnsubscribeGroup(group string) int
	// CompleteAll stops new subscriptions and completes every connection.
	CompleteAll(ctx context.Context) error
	Len() int
	SetCloseListener(fn CloseListener[K])
}

type Config struct {
	MaxLifetime time.Duration
	Shards      int
	// UUID generates connection ids.
	UUID uuid.UUID
}

type shard[K comparable] struct {
	mu     sync.Mutex
	groups map[string]map[K]*Connection
}

type registry[K comparable] struct {
	name    string
	cfg     Config
	groupOf func(K) string
	seed    maphash.Seed
	shards  []*shard[K]
	l       logger.Logger

	closed atomic.Bool

	listenerMu sync.RWMutex
	listener   CloseListener[K]
}

// NewRegistry builds a registry whose keys are partitioned by groupOf.
// Locks are per shard, and a group always lives in a single shard.
func NewRegistry[K comparable](name string, groupOf func(K) string, cfg Config, l logger.Logger) Registry[K] {
	if cfg.Shards <= 0 {
		cfg.Shards = defaultShards
	}
	if cfg.UUID == nil {
		cfg.UUID = uuid.New()
	}
	shards := make([]*shard[K], cfg.Shards)
	for i := range shards {
		shards[i] = &shard[K]{groups: make(map[string]map[K]*Connection)}
	}
	return &registry[K]{
		name:    name,
		cfg:     cfg,
		groupOf: groupOf,
		seed:    maphash.MakeSeed(),
		shards:  shards,
		l:       l,
	}
}

func NewViewerRegistry(cfg Config, l logger.Logger) Registry[ViewerKey] {
	return NewRegistry("viewer", func(k ViewerKey) string { return k.SessionCode }, cfg, l)
}

func NewStreamerRegistry(cfg Config, l logger.Logger) Registry[int64] {
	return NewRegistry("streamer", StreamerGroup, cfg, l)
}

// StreamerGroup is the group name a streamer's connection is stored under.
func StreamerGroup(streamerID int64) string {
	return strconv.FormatInt(streamerID, 10)
}

func (r *registry[K]) shardFor(group string) *shard[K] {
	return r.shards[maphash.String(r.seed, group)%uint64(len(r.shards))]
}

func (r *registry[K]) SetCloseListener(fn CloseListener[K]) {
	r.listenerMu.Lock()
	defer r.listenerMu.Unlock()
	r.listener = fn
}

func (r *registry[K]) Subscribe(key K, sender Sender) (*Connection, error) {
	if r.closed.Load() {
		return nil, ErrRegistryClosed
	}

	group := r.groupOf(key)
	conn := newConnection(r.cfg.UUID.NewUUID(), sender, time.Now(), func(c *Connection, reason CloseReason, err error) {
		r.release(key, group, c, reason, err)
	})

	sh := r.shardFor(group)
	sh.mu.Lock()
	// Checked again under the lock so CompleteAll cannot miss this entry.
	if r.closed.Load() {
		sh.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	members, ok := sh.groups[group]
	if !ok {
		members = make(map[K]*Connection)
		sh.groups[group] = members
	}
	old := members[key]
	members[key] = conn
	sh.mu.Unlock()

	if old != nil {
		old.complete(ReasonReplaced, nil)
	}
	conn.startTimer(r.cfg.MaxLifetime)

	return conn, nil
}

func (r *registry[K]) Get(key K) (*Connection, bool) {
	group := r.groupOf(key)
	sh := r.shardFor(group)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.groups[group][key]
	return c, ok
}

func (r *registry[K]) GetAll(group string) map[K]*Connection {
	sh := r.shardFor(group)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	members := sh.groups[group]
	out := make(map[K]*Connection, len(members))
	for k, c := range members {
		out[k] = c
	}
	return out
}

func (r *registry[K]) Unsubscribe(key K) bool {
	group := r.groupOf(key)
	sh := r.shardFor(group)

	sh.mu.Lock()
	c, ok := sh.groups[group][key]
	if ok {
		r.deleteLocked(sh, group, key)
	}
	sh.mu.Unlock()

	if !ok {
		return false
	}
	c.complete(ReasonUnsubscribed, nil)
	return true
}

func (r *registry[K]) UnsubscribeGroup(group string) int {
	sh := r.shardFor(group)

	sh.mu.Lock()
	members := sh.groups[group]
	delete(sh.groups, group)
	sh.mu.Unlock()

	for _, c := range members {
		c.complete(ReasonUnsubscribed, nil)
	}
	return len(members)
}

func (r *registry[K]) CompleteAll(ctx context.Context) error {
	r.closed.Store(true)

	var drained []*Connection
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, members := range sh.groups {
			for _, c := range members {
				drained = append(drained, c)
			}
		}
		sh.groups = make(map[string]map[K]*Connection)
		sh.mu.Unlock()
	}

	var errs []error
	for _, c := range drained {
		c.complete(ReasonShutdown, nil)
		if _, err := c.CloseReason(); err != nil {
			errs = append(errs, err)
		}
	}

	r.l.Infof(ctx, "connection.%s.CompleteAll: completed %d connections", r.name, len(drained))
	return errors.Join(errs...)
}

func (r *registry[K]) Len() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, members := range sh.groups {
			n += len(members)
		}
		sh.mu.Unlock()
	}
	return n
}

// release runs once per connection from its completion path. It only drops
// the map entry if the entry is still this very connection.
func (r *registry[K]) release(key K, group string, c *Connection, reason CloseReason, err error) {
	sh := r.shardFor(group)
	sh.mu.Lock()
	if cur, ok := sh.groups[group][key]; ok && cur == c {
		r.deleteLocked(sh, group, key)
	}
	sh.mu.Unlock()

	r.listenerMu.RLock()
	fn := r.listener
	r.listenerMu.RUnlock()
	if fn != nil {
		fn(key, c, reason, err)
	}
}

func (r *registry[K]) deleteLocked(sh *shard[K], group string, key K) {
	members := sh.groups[group]
	delete(members, key)
	if len(members) == 0 {
		delete(sh.groups, group)
	}
}
