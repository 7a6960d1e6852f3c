// Package taxisim simulates the remote taxi location and route services for
// local runs and tests.
package taxisim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"taxitrack/internal/location"
	"taxitrack/internal/route"
)

var (
	ErrMissingKey  = errors.New("missing idempotency key")
	ErrKeyMismatch = errors.New("idempotency key does not match route timestamp")
	ErrEmptyRoute  = errors.New("route has no coordinates")
)

type trip struct {
	id        string
	key       string
	waypoints orb.LineString
	next      int
}

// Sim is an in-memory dispatcher: idle vehicles plus one trip per created
// route, each driving its route one waypoint per scoped poll.
type Sim struct {
	mu       sync.Mutex
	store    Store
	sentinel float64
	idle     []location.Position
	trips    map[string]*trip
	order    []string
	created  int
	log      *slog.Logger
}

// New creates a simulator. idle vehicles are always part of the global feed.
func New(store Store, idle []location.Position, sentinel float64, logger *slog.Logger) *Sim {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sim{
		store:    store,
		sentinel: sentinel,
		idle:     append([]location.Position(nil), idle...),
		trips:    make(map[string]*trip),
		log:      logger.With("component", "taxisim"),
	}
}

// Create registers a trip for d unless key was already claimed. The reply
// reports whether this call created anything.
func (s *Sim) Create(ctx context.Context, key string, d route.Descriptor) (route.CreateReply, error) {
	switch {
	case key == "":
		return route.CreateReply{}, ErrMissingKey
	case key != d.IdempotencyKey():
		return route.CreateReply{}, fmt.Errorf("%w: %s != %s", ErrKeyMismatch, key, d.IdempotencyKey())
	case len(d.Coordinates) == 0:
		return route.CreateReply{}, ErrEmptyRoute
	}

	first, err := s.store.Claim(ctx, key)
	if err != nil {
		return route.CreateReply{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !first {
		reply := route.CreateReply{}
		if t, ok := s.trips[key]; ok {
			reply.ID = t.id
		}
		s.log.Info("duplicate route submission", "key", key)
		return reply, nil
	}
	t := &trip{
		id:        uuid.NewString(),
		key:       key,
		waypoints: append(orb.LineString(nil), d.Coordinates...),
	}
	if _, known := s.trips[key]; !known {
		s.order = append(s.order, key)
	}
	s.trips[key] = t
	s.created++
	s.log.Info("route created", "key", key, "id", t.id, "waypoints", len(t.waypoints))
	return route.CreateReply{ID: t.id, Created: true}, nil
}

// Created counts effective creations.
func (s *Sim) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

// Locations is the global feed: idle vehicles then each trip's current
// position. Trips that have arrived are reported with the sentinel marker.
func (s *Sim) Locations() []location.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]location.Position(nil), s.idle...)
	for _, k := range s.order {
		out = append(out, s.current(s.trips[k]))
	}
	return out
}

// Track returns the trip's position and advances it by one waypoint. Once
// every waypoint has been reported it returns the sentinel record.
func (s *Sim) Track(key string) (location.Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[key]
	if !ok {
		return location.Position{}, false
	}
	p := s.current(t)
	if t.next < len(t.waypoints) {
		t.next++
	}
	return p, true
}

func (s *Sim) current(t *trip) location.Position {
	if t.next >= len(t.waypoints) {
		last := t.waypoints[len(t.waypoints)-1]
		return location.Position{Key: t.key, Coordinate: [3]float64{last.Lon(), last.Lat(), s.sentinel}}
	}
	wp := t.waypoints[t.next]
	return location.Position{Key: t.key, Coordinate: [3]float64{wp.Lon(), wp.Lat(), float64(t.next)}}
}
