package keys

import (
	"fmt"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"frost-node/internal/curve"
	"frost-node/internal/party"
)

func newTestManager(t *testing.T, parties int) (*Manager, *party.Registry) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	registry := party.NewRegistry(log)
	for i := 1; i <= parties; i++ {
		_, err := registry.Register(fmt.Sprintf("p%d", i), "", "", "", 100)
		require.NoError(t, err)
	}
	return NewManager(registry, nil, log), registry
}

func TestGenerateKeyValidation(t *testing.T) {
	m, _ := newTestManager(t, 3)

	_, err := m.GenerateKey(1, 3)
	require.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = m.GenerateKey(0, 3)
	require.ErrorIs(t, err, ErrInvalidThreshold)
	_, err = m.GenerateKey(4, 3)
	require.ErrorIs(t, err, ErrInvalidThreshold)

	// Fails before any protocol round when too few parties are active.
	_, err = m.GenerateKey(2, 4)
	require.ErrorIs(t, err, party.ErrInsufficientParties)
}

func TestGenerateKey(t *testing.T) {
	m, registry := newTestManager(t, 3)

	snap, err := m.GenerateKey(2, 3)
	require.NoError(t, err)
	require.NotEmpty(t, snap.KeyID)
	require.Equal(t, 2, snap.Threshold)
	require.Equal(t, 3, snap.TotalParties)
	require.Equal(t, []uint32{1, 2, 3}, snap.Participants)
	require.False(t, snap.Revoked)
	require.Len(t, snap.PublicKeyHex(), 66)
	require.Equal(t, "0x", snap.GroupAddress[:2])
	require.Len(t, snap.GroupAddress, 42)
	require.Len(t, snap.Verification, 3)

	require.Len(t, snap.Versions, 1)
	require.Equal(t, 1, snap.Versions[0].Version)
	require.Equal(t, StatusActive, snap.Versions[0].Status)

	for _, idx := range snap.Participants {
		en, ok := registry.Engine(idx)
		require.True(t, ok)
		require.True(t, en.HasShare(snap.KeyID))
	}
}

func TestGetAndList(t *testing.T) {
	m, _ := newTestManager(t, 3)

	_, err := m.Get("missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
	_, err = m.GetVersions("missing")
	require.ErrorIs(t, err, ErrKeyNotFound)
	require.Empty(t, m.List())

	snap, err := m.GenerateKey(2, 3)
	require.NoError(t, err)

	got, err := m.Get(snap.KeyID)
	require.NoError(t, err)
	require.Equal(t, snap.KeyID, got.KeyID)
	require.Len(t, m.List(), 1)
}

func TestRotatePreservesKeyAndAddress(t *testing.T) {
	m, _ := newTestManager(t, 3)

	snap, err := m.GenerateKey(2, 3)
	require.NoError(t, err)

	rotated, err := m.RotateKey(snap.KeyID)
	require.NoError(t, err)
	require.True(t, curve.PointsEqual(snap.GroupPublicKey, rotated.GroupPublicKey))
	require.Equal(t, snap.GroupAddress, rotated.GroupAddress)

	require.Len(t, rotated.Versions, 2)
	require.Equal(t, StatusRotated, rotated.Versions[0].Status)
	require.NotNil(t, rotated.Versions[0].RotatedAt)
	require.Equal(t, StatusActive, rotated.Versions[1].Status)
	require.Equal(t, 2, rotated.Versions[1].Version)
}

func TestRevoke(t *testing.T) {
	m, registry := newTestManager(t, 3)

	snap, err := m.GenerateKey(2, 3)
	require.NoError(t, err)

	var revokedID string
	m.OnRevoke(func(keyID string) { revokedID = keyID })

	require.NoError(t, m.RevokeKey(snap.KeyID))
	require.Equal(t, snap.KeyID, revokedID)

	got, err := m.Get(snap.KeyID)
	require.NoError(t, err)
	require.True(t, got.Revoked)
	require.Equal(t, StatusRevoked, got.Versions[0].Status)

	for _, idx := range snap.Participants {
		en, ok := registry.Engine(idx)
		require.True(t, ok)
		require.False(t, en.HasShare(snap.KeyID))
	}

	require.ErrorIs(t, m.RevokeKey(snap.KeyID), ErrKeyRevoked)
	_, err = m.RotateKey(snap.KeyID)
	require.ErrorIs(t, err, ErrKeyRevoked)
	require.ErrorIs(t, m.RevokeKey("missing"), ErrKeyNotFound)
}

func TestIndependentKeysCoexist(t *testing.T) {
	m, registry := newTestManager(t, 4)

	a, err := m.GenerateKey(2, 3)
	require.NoError(t, err)
	b, err := m.GenerateKey(3, 4)
	require.NoError(t, err)

	require.NotEqual(t, a.KeyID, b.KeyID)
	require.False(t, curve.PointsEqual(a.GroupPublicKey, b.GroupPublicKey))
	require.NotEqual(t, a.GroupAddress, b.GroupAddress)

	require.NoError(t, m.RevokeKey(a.KeyID))
	en, ok := registry.Engine(1)
	require.True(t, ok)
	require.False(t, en.HasShare(a.KeyID))
	require.True(t, en.HasShare(b.KeyID))
}
