// Package keys owns key records and their version history, and drives the
// distributed key generation and resharing exchanges across the party
// engines.
package keys

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"frost-node/internal/curve"
	"frost-node/internal/frost"
	"frost-node/internal/party"
	"frost-node/internal/storage/models"
)

var (
	// ErrKeyNotFound is returned for operations on unknown key ids.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyRevoked is returned for operations on a revoked key.
	ErrKeyRevoked = errors.New("key is revoked")
	// ErrInvalidThreshold is returned when the t-of-n parameters violate
	// 1 < t <= n.
	ErrInvalidThreshold = errors.New("invalid threshold parameters")
)

// VersionStatus is the lifecycle state of one generation of shares.
type VersionStatus string

const (
	StatusActive  VersionStatus = "active"
	StatusRotated VersionStatus = "rotated"
	StatusRevoked VersionStatus = "revoked"
)

// Version is the metadata for one generation of a key's shares. Share
// material itself lives inside the party engines and is zeroized the moment
// a version leaves the active state.
type Version struct {
	Version   int
	Status    VersionStatus
	CreatedAt time.Time
	RotatedAt *time.Time
}

// record is the manager's authoritative state for one key. Mutations are
// serialized behind mu; different keys proceed in parallel.
type record struct {
	mu             sync.Mutex
	keyID          string
	threshold      int
	totalParties   int
	groupPublicKey *curve.Point
	groupAddress   string
	participants   []uint32
	verification   map[uint32]*curve.Point
	versions       []Version
}

func (rec *record) activeVersion() *Version {
	for i := range rec.versions {
		if rec.versions[i].Status == StatusActive {
			return &rec.versions[i]
		}
	}
	return nil
}

// Snapshot is the read-only public view of a key handed to the coordinator
// and to API callers. It never contains share material.
type Snapshot struct {
	KeyID          string
	Threshold      int
	TotalParties   int
	GroupPublicKey *curve.Point
	GroupAddress   string
	Participants   []uint32
	Verification   map[uint32]*curve.Point
	Revoked        bool
	Versions       []Version
}

// PublicKeyHex returns the compressed group public key as hex.
func (s *Snapshot) PublicKeyHex() string {
	return hex.EncodeToString(curve.PointBytes(s.GroupPublicKey))
}

// Manager owns every key record and drives generation, rotation, and
// revocation through the registry's party engines.
type Manager struct {
	mu       sync.RWMutex
	registry *party.Registry
	records  map[string]*record
	db       *gorm.DB // nil means in-memory only
	log      *logrus.Logger
	onRevoke func(keyID string)
}

// NewManager creates a key lifecycle manager. db may be nil to run without
// persistence.
func NewManager(registry *party.Registry, db *gorm.DB, log *logrus.Logger) *Manager {
	return &Manager{
		registry: registry,
		records:  make(map[string]*record),
		db:       db,
		log:      log,
	}
}

// OnRevoke registers a callback invoked with the key id whenever a key is
// revoked, letting the signing coordinator fail pending sessions for it.
func (m *Manager) OnRevoke(fn func(keyID string)) {
	m.onRevoke = fn
}

// GenerateKey runs a full distributed key generation across the
// lowest-indexed active parties: every selected party commits to a random
// polynomial, distributes and verifies evaluations, and finalizes its
// aggregate share. The group public key and address are stored with a
// version 1 record. Fails fast with party.ErrInsufficientParties before any
// protocol round if the active set cannot seat totalParties parties.
func (m *Manager) GenerateKey(threshold, totalParties int) (*Snapshot, error) {
	if threshold <= 1 || threshold > totalParties {
		return nil, fmt.Errorf("%w: t=%d n=%d", ErrInvalidThreshold, threshold, totalParties)
	}
	if active := m.registry.ActiveCount(); active < totalParties {
		return nil, fmt.Errorf("%w: need %d, have %d active", party.ErrInsufficientParties, totalParties, active)
	}

	engines, indices, err := m.registry.SelectQuorum(totalParties, nil)
	if err != nil {
		return nil, err
	}

	keyID := uuid.New().String()
	result, err := m.runExchange(engines, keyID, threshold, indices, false)
	if err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}

	rec := &record{
		keyID:          keyID,
		threshold:      threshold,
		totalParties:   totalParties,
		groupPublicKey: result.GroupPublicKey,
		groupAddress:   result.GroupAddress,
		participants:   indices,
		verification:   result.VerificationShares,
		versions: []Version{{
			Version:   1,
			Status:    StatusActive,
			CreatedAt: time.Now(),
		}},
	}

	m.mu.Lock()
	m.records[keyID] = rec
	m.mu.Unlock()

	if err := m.persistRecord(rec); err != nil {
		m.log.WithError(err).WithField("key", keyID).Error("Failed to persist key record")
	}

	m.log.WithFields(logrus.Fields{
		"key":       keyID,
		"address":   rec.groupAddress,
		"threshold": threshold,
		"parties":   totalParties,
	}).Info("Key generated")

	rec.mu.Lock()
	snap := m.snapshotLocked(rec)
	rec.mu.Unlock()
	return snap, nil
}

// RotateKey re-shares the key: every participant contributes a polynomial
// with a zero constant term, so summing the exchange replaces every share
// while the group public key and address are provably unchanged. The
// previous version is marked rotated and its share material is zeroized
// immediately inside each engine.
func (m *Manager) RotateKey(keyID string) (*Snapshot, error) {
	rec, err := m.lookup(keyID)
	if err != nil {
		return nil, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	active := rec.activeVersion()
	if active == nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyRevoked, keyID)
	}

	engines := make([]*frost.Engine, 0, len(rec.participants))
	for _, idx := range rec.participants {
		en, ok := m.registry.Engine(idx)
		if !ok {
			return nil, fmt.Errorf("%w: party %d missing for rotation", party.ErrInsufficientParties, idx)
		}
		engines = append(engines, en)
	}

	result, err := m.runExchange(engines, keyID, rec.threshold, rec.participants, true)
	if err != nil {
		return nil, fmt.Errorf("key rotation failed: %w", err)
	}
	if !curve.PointsEqual(result.GroupPublicKey, rec.groupPublicKey) {
		return nil, errors.New("rotation changed the group public key")
	}

	now := time.Now()
	active.Status = StatusRotated
	active.RotatedAt = &now
	rec.verification = result.VerificationShares
	rec.versions = append(rec.versions, Version{
		Version:   len(rec.versions) + 1,
		Status:    StatusActive,
		CreatedAt: now,
	})

	if err := m.persistRecord(rec); err != nil {
		m.log.WithError(err).WithField("key", keyID).Error("Failed to persist rotated key record")
	}

	m.log.WithFields(logrus.Fields{"key": keyID, "version": len(rec.versions)}).Info("Key rotated")
	return m.snapshotLocked(rec), nil
}

// RevokeKey marks the active version revoked and zeroizes every party's
// share material for the key. Pending signing sessions referencing the key
// are failed through the OnRevoke callback.
func (m *Manager) RevokeKey(keyID string) error {
	rec, err := m.lookup(keyID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	active := rec.activeVersion()
	if active == nil {
		rec.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrKeyRevoked, keyID)
	}
	active.Status = StatusRevoked
	for _, idx := range rec.participants {
		if en, ok := m.registry.Engine(idx); ok {
			en.DeleteShare(keyID)
		}
	}
	rec.mu.Unlock()

	if err := m.persistRecord(rec); err != nil {
		m.log.WithError(err).WithField("key", keyID).Error("Failed to persist revoked key record")
	}
	if m.onRevoke != nil {
		m.onRevoke(keyID)
	}

	m.log.WithField("key", keyID).Warn("Key revoked; share material zeroized")
	return nil
}

// GetVersions returns the version history metadata for a key.
func (m *Manager) GetVersions(keyID string) ([]Version, error) {
	rec, err := m.lookup(keyID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]Version, len(rec.versions))
	copy(out, rec.versions)
	return out, nil
}

// Get returns the public snapshot for a key.
func (m *Manager) Get(keyID string) (*Snapshot, error) {
	rec, err := m.lookup(keyID)
	if err != nil {
		return nil, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return m.snapshotLocked(rec), nil
}

// List returns snapshots of every key.
func (m *Manager) List() []*Snapshot {
	m.mu.RLock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	out := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		if snap, err := m.Get(id); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

func (m *Manager) lookup(keyID string) (*record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyID)
	}
	return rec, nil
}

// snapshotLocked builds a Snapshot; the caller holds rec.mu (or rec is not
// yet published).
func (m *Manager) snapshotLocked(rec *record) *Snapshot {
	versions := make([]Version, len(rec.versions))
	copy(versions, rec.versions)
	participants := make([]uint32, len(rec.participants))
	copy(participants, rec.participants)
	verification := make(map[uint32]*curve.Point, len(rec.verification))
	for k, v := range rec.verification {
		verification[k] = v
	}
	revoked := true
	for _, v := range versions {
		if v.Status == StatusActive {
			revoked = false
		}
	}
	return &Snapshot{
		KeyID:          rec.keyID,
		Threshold:      rec.threshold,
		TotalParties:   rec.totalParties,
		GroupPublicKey: rec.groupPublicKey,
		GroupAddress:   rec.groupAddress,
		Participants:   participants,
		Verification:   verification,
		Revoked:        revoked,
		Versions:       versions,
	}
}

// runExchange drives one full key generation or refresh exchange across the
// given engines: contributions, envelope delivery with verification, then
// finalization on every party. Envelope plaintexts held in transit are
// zeroized after delivery.
func (m *Manager) runExchange(engines []*frost.Engine, keyID string, threshold int, indices []uint32, refresh bool) (*frost.KeyGenResult, error) {
	byIndex := make(map[uint32]*frost.Engine, len(engines))
	for _, en := range engines {
		byIndex[en.Index()] = en
	}

	abort := func() {
		for _, en := range engines {
			en.AbortExchange(keyID)
		}
	}

	contributions := make([]*frost.Contribution, 0, len(engines))
	commitmentsBySender := make(map[uint32][]*curve.Point, len(engines))
	var pending []*frost.ShareEnvelope

	for _, en := range engines {
		var (
			contribution *frost.Contribution
			envelopes    []*frost.ShareEnvelope
			err          error
		)
		if refresh {
			contribution, envelopes, err = en.GenerateRefreshContribution(keyID)
		} else {
			contribution, envelopes, err = en.GenerateContribution(keyID, threshold, indices)
		}
		if err != nil {
			abort()
			return nil, fmt.Errorf("party %d contribution: %w", en.Index(), err)
		}
		contributions = append(contributions, contribution)
		commitmentsBySender[contribution.Index] = contribution.Commitments
		pending = append(pending, envelopes...)
	}

	for _, env := range pending {
		recipient, ok := byIndex[env.To]
		if !ok {
			abort()
			return nil, fmt.Errorf("share addressed to unknown party %d", env.To)
		}
		err := recipient.ReceiveShare(keyID, env, commitmentsBySender[env.From])
		env.Value.Zero()
		if err != nil {
			abort()
			return nil, fmt.Errorf("party %d rejected share: %w", env.To, err)
		}
	}

	var first *frost.KeyGenResult
	for _, en := range engines {
		result, err := en.FinalizeKeyGen(keyID, contributions)
		if err != nil {
			abort()
			return nil, fmt.Errorf("party %d finalize: %w", en.Index(), err)
		}
		if first == nil {
			first = result
		} else if !curve.PointsEqual(first.GroupPublicKey, result.GroupPublicKey) {
			abort()
			return nil, errors.New("parties disagree on the group public key")
		}
	}
	return first, nil
}

// persistRecord mirrors the record's metadata to storage. No-op without a
// database.
func (m *Manager) persistRecord(rec *record) error {
	if m.db == nil {
		return nil
	}

	keyUUID, err := uuid.Parse(rec.keyID)
	if err != nil {
		return err
	}
	parts := make([]string, len(rec.participants))
	for i, p := range rec.participants {
		parts[i] = strconv.FormatUint(uint64(p), 10)
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		model := models.KeyRecord{
			KeyID:          keyUUID,
			GroupPublicKey: hex.EncodeToString(curve.PointBytes(rec.groupPublicKey)),
			GroupAddress:   rec.groupAddress,
			Threshold:      rec.threshold,
			TotalParties:   rec.totalParties,
			Participants:   strings.Join(parts, ","),
		}
		if err := tx.Save(&model).Error; err != nil {
			return err
		}
		if err := tx.Where("key_record_id = ?", keyUUID).Delete(&models.KeyVersion{}).Error; err != nil {
			return err
		}
		for _, v := range rec.versions {
			version := models.KeyVersion{
				KeyRecordID: keyUUID,
				Version:     v.Version,
				Status:      string(v.Status),
				RotatedAt:   v.RotatedAt,
			}
			if err := tx.Create(&version).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
