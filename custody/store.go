// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package custody holds shares for a limited time. Expired shares are removed
// on the first read after expiry and by a periodic sweep, and removal is
// final: the store keeps no other copy.
package custody

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GoogleCloudPlatform/ssdd/constants"
	"github.com/GoogleCloudPlatform/ssdd/secret_sharing/secrets"
	glog "github.com/golang/glog"
)

var (
	// ErrNotFound is returned for an unknown share ID.
	ErrNotFound = errors.New("share not found")
	// ErrExpired is returned when a share was read after its expiry. The share
	// is deleted by that read.
	ErrExpired = errors.New("share expired")
	// ErrInvalidTTL is returned when storing with a non-positive TTL.
	ErrInvalidTTL = errors.New("ttl must be positive")
	// ErrInvalidShare is returned when storing an empty ID or a malformed share.
	ErrInvalidShare = errors.New("invalid share")
)

// Clock tells the store what time it is.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Entry is the public view of a stored share. It never includes the payload.
type Entry struct {
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// EventKind describes what changed in the store.
type EventKind int

// Kinds of events published to subscribers.
const (
	EventStored EventKind = iota
	EventEvicted
	EventExpired
	EventDeleted
)

func (k EventKind) String() string {
	switch k {
	case EventStored:
		return "stored"
	case EventEvicted:
		return "evicted"
	case EventExpired:
		return "expired"
	case EventDeleted:
		return "deleted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is published after every change. Snapshot is the state right after it.
type Event struct {
	Kind     EventKind `json:"kind"`
	IDs      []string  `json:"ids"`
	Snapshot []Entry   `json:"snapshot"`
}

// subscriberBuffer is how many events a subscriber may fall behind before
// further events are dropped for it.
const subscriberBuffer = 16

type record struct {
	payload   []byte
	expiresAt time.Time
}

// Store maps share IDs to shares with an expiry time. It is safe for
// concurrent use.
type Store struct {
	clock         Clock
	sweepInterval time.Duration
	metrics       *Metrics

	mu      sync.Mutex
	records map[string]record

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSub     int
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the wall clock, e.g. with a fake in tests.
func WithClock(c Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithSweepInterval sets how often Run evicts expired shares.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

// WithMetrics records store activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		clock:         SystemClock(),
		sweepInterval: constants.SweepInterval,
		records:       make(map[string]record),
		subscribers:   make(map[int]chan Event),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store inserts or replaces the share under shareID. It expires ttl from now.
func (s *Store) Store(shareID string, share secrets.Share, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidTTL, ttl)
	}
	if shareID == "" {
		return fmt.Errorf("%w: empty share ID", ErrInvalidShare)
	}
	if share.ID == 0 || len(share.Coordinates) == 0 {
		return fmt.Errorf("%w: share %q has no coordinates or X = 0", ErrInvalidShare, shareID)
	}

	s.mu.Lock()
	s.records[shareID] = record{
		payload:   share.Bytes(),
		expiresAt: s.clock.Now().Add(ttl),
	}
	s.metrics.stored(len(s.records))
	s.publish(Event{Kind: EventStored, IDs: []string{shareID}, Snapshot: s.snapshotLocked()})
	s.mu.Unlock()
	return nil
}

// Retrieve returns a copy of the share stored under shareID. A share read
// after its expiry is deleted and ErrExpired is returned; later reads return
// ErrNotFound.
func (s *Store) Retrieve(shareID string) (secrets.Share, error) {
	s.mu.Lock()
	rec, ok := s.records[shareID]
	if !ok {
		s.mu.Unlock()
		s.metrics.notFound()
		return secrets.Share{}, ErrNotFound
	}
	if s.clock.Now().After(rec.expiresAt) {
		delete(s.records, shareID)
		clear(rec.payload)
		s.metrics.expired(len(s.records))
		s.publish(Event{Kind: EventExpired, IDs: []string{shareID}, Snapshot: s.snapshotLocked()})
		s.mu.Unlock()
		return secrets.Share{}, ErrExpired
	}
	share, err := secrets.ParseShare(rec.payload)
	s.mu.Unlock()
	if err != nil {
		return secrets.Share{}, fmt.Errorf("decoding share %q: %w", shareID, err)
	}

	s.metrics.retrieved()
	return share, nil
}

// Delete removes the share stored under shareID.
func (s *Store) Delete(shareID string) error {
	s.mu.Lock()
	rec, ok := s.records[shareID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.records, shareID)
	clear(rec.payload)
	s.metrics.deleted(len(s.records))
	s.publish(Event{Kind: EventDeleted, IDs: []string{shareID}, Snapshot: s.snapshotLocked()})
	s.mu.Unlock()
	return nil
}

// Sweep deletes every expired share and returns how many were deleted.
// Subscribers get one EventEvicted per non-empty sweep.
func (s *Store) Sweep() int {
	s.mu.Lock()
	now := s.clock.Now()
	var evicted []string
	for id, rec := range s.records {
		if now.After(rec.expiresAt) {
			delete(s.records, id)
			clear(rec.payload)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) == 0 {
		s.mu.Unlock()
		return 0
	}
	live := len(s.records)
	sort.Strings(evicted)
	s.metrics.evicted(len(evicted), live)
	s.publish(Event{Kind: EventEvicted, IDs: evicted, Snapshot: s.snapshotLocked()})
	s.mu.Unlock()

	glog.Infof("Evicted %d expired shares, %d remaining", len(evicted), live)
	return len(evicted)
}

// Run sweeps on every tick of the sweep interval until ctx is done.
func (s *Store) Run(ctx context.Context) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// Snapshot lists the stored shares ordered by expiry, then ID. Expired shares
// not yet swept are included.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of stored shares.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(s.records))
	for id, rec := range s.records {
		out = append(out, Entry{ID: id, ExpiresAt: rec.expiresAt})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Subscribe returns a channel of store events and a function that ends the
// subscription and closes the channel. Events are dropped for a subscriber
// that falls too far behind.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// publish must be called with mu held so subscribers and the gauge see
// changes in the order they were made. It never blocks.
func (s *Store) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			s.metrics.droppedEvent()
		}
	}
}
