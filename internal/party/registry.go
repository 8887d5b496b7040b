// Package party tracks the signing parties known to the node and hands out
// the live protocol endpoint for each one.
package party

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"frost-node/internal/frost"
)

var (
	// ErrAlreadyRegistered is returned when a party id is registered twice.
	ErrAlreadyRegistered = errors.New("party already registered")
	// ErrInsufficientParties is returned when the active set cannot cover a
	// requested threshold or party count.
	ErrInsufficientParties = errors.New("insufficient active parties")
	// ErrPartyNotFound is returned for lookups of unknown party ids.
	ErrPartyNotFound = errors.New("party not found")
)

// Party describes one signing party. Index is the x-coordinate used in
// Lagrange interpolation and is stable for the lifetime of every key the
// party participated in generating; parties are deactivated rather than
// deleted so historical signature shares stay attributable.
type Party struct {
	ID           string
	Index        uint32
	Endpoint     string
	PublicKey    string
	Address      string
	Stake        int64
	RegisteredAt time.Time
	Active       bool
}

type entry struct {
	party  Party
	engine *frost.Engine
}

// Registry is the single source of truth for party membership. It maps each
// party to its protocol engine, the in-process stand-in for the party's
// remote RPC endpoint.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*entry
	byIndex   map[uint32]*entry
	nextIndex uint32
	log       *logrus.Logger
}

// NewRegistry creates an empty party registry.
func NewRegistry(log *logrus.Logger) *Registry {
	return &Registry{
		byID:      make(map[string]*entry),
		byIndex:   make(map[uint32]*entry),
		nextIndex: 1,
		log:       log,
	}
}

// Register adds a new party, assigns it the next free interpolation index,
// and spins up its protocol engine. Fails with ErrAlreadyRegistered if the
// id is taken.
func (r *Registry) Register(id, endpoint, publicKey, address string, stake int64) (Party, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return Party{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}

	p := Party{
		ID:           id,
		Index:        r.nextIndex,
		Endpoint:     endpoint,
		PublicKey:    publicKey,
		Address:      address,
		Stake:        stake,
		RegisteredAt: time.Now(),
		Active:       true,
	}
	r.nextIndex++

	en := &entry{party: p, engine: frost.NewEngine(p.Index, r.log)}
	r.byID[id] = en
	r.byIndex[p.Index] = en

	r.log.WithFields(logrus.Fields{"party": id, "index": p.Index, "endpoint": endpoint}).Info("Party registered")
	return p, nil
}

// Deactivate marks a party inactive. The record and its index are retained.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	en, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	en.party.Active = false
	r.log.WithField("party", id).Info("Party deactivated")
	return nil
}

// Get returns the party record for an id.
func (r *Registry) Get(id string) (Party, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	en, ok := r.byID[id]
	if !ok {
		return Party{}, fmt.Errorf("%w: %s", ErrPartyNotFound, id)
	}
	return en.party, nil
}

// ListActive returns the active parties ordered by index. Quorums are always
// drawn from the front of this list so participant selection is
// deterministic.
func (r *Registry) ListActive() []Party {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parties := make([]Party, 0, len(r.byID))
	for _, en := range r.byID {
		if en.party.Active {
			parties = append(parties, en.party)
		}
	}
	sort.Slice(parties, func(a, b int) bool { return parties[a].Index < parties[b].Index })
	return parties
}

// ListAll returns every registered party, active or not, ordered by index.
func (r *Registry) ListAll() []Party {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parties := make([]Party, 0, len(r.byID))
	for _, en := range r.byID {
		parties = append(parties, en.party)
	}
	sort.Slice(parties, func(a, b int) bool { return parties[a].Index < parties[b].Index })
	return parties
}

// Engine returns the protocol endpoint for the party at the given index.
func (r *Registry) Engine(index uint32) (*frost.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	en, ok := r.byIndex[index]
	if !ok {
		return nil, false
	}
	return en.engine, true
}

// SelectQuorum returns the engines of the count lowest-indexed active
// parties, excluding any listed indices. Fails with ErrInsufficientParties
// when the active set cannot cover the request.
func (r *Registry) SelectQuorum(count int, exclude map[uint32]bool) ([]*frost.Engine, []uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make([]*entry, 0, len(r.byID))
	for _, en := range r.byID {
		if en.party.Active && !exclude[en.party.Index] {
			active = append(active, en)
		}
	}
	sort.Slice(active, func(a, b int) bool { return active[a].party.Index < active[b].party.Index })

	engines := make([]*frost.Engine, 0, count)
	indices := make([]uint32, 0, count)
	for _, en := range active {
		if len(engines) == count {
			break
		}
		engines = append(engines, en.engine)
		indices = append(indices, en.party.Index)
	}
	if len(engines) < count {
		return nil, nil, fmt.Errorf("%w: need %d, have %d eligible", ErrInsufficientParties, count, len(engines))
	}
	return engines, indices, nil
}

// ActiveCount returns the number of active parties.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, en := range r.byID {
		if en.party.Active {
			n++
		}
	}
	return n
}
