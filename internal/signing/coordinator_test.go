package signing

import (
	"crypto/sha256"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"frost-node/internal/curve"
	"frost-node/internal/frost"
	"frost-node/internal/keys"
	"frost-node/internal/party"
)

type harness struct {
	registry    *party.Registry
	keys        *keys.Manager
	coordinator *Coordinator
	snap        *keys.Snapshot
}

func newHarness(t *testing.T, parties int, opts Options) *harness {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	registry := party.NewRegistry(log)
	for i := 1; i <= parties; i++ {
		_, err := registry.Register(fmt.Sprintf("p%d", i), "", "", "", 100)
		require.NoError(t, err)
	}
	manager := keys.NewManager(registry, nil, log)
	coordinator := NewCoordinator(registry, manager, opts, log)

	snap, err := manager.GenerateKey(2, parties)
	require.NoError(t, err)
	return &harness{registry: registry, keys: manager, coordinator: coordinator, snap: snap}
}

func (h *harness) engine(t *testing.T, index uint32) *frost.Engine {
	t.Helper()
	en, ok := h.registry.Engine(index)
	require.True(t, ok)
	return en
}

func TestSignEndToEnd(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())

	message := []byte("transfer 5 to 0xdead")
	sig, info, err := h.coordinator.Sign(h.snap.KeyID, message)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, info.Status)
	require.Equal(t, []uint32{1, 2}, info.Participants)
	require.Equal(t, 2, info.Shares)

	msgHash := sha256.Sum256(message)
	require.True(t, frost.VerifySignature(sig, msgHash, h.snap.GroupPublicKey))
}

func TestSignQuorumPathIndependence(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())
	message := []byte("same message, different quorum")
	msgHash := sha256.Sum256(message)

	sig1, info1, err := h.coordinator.Sign(h.snap.KeyID, message)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, info1.Participants)

	// With party 2 offline the quorum shifts to {1, 3}; the signature still
	// verifies under the same group key.
	require.NoError(t, h.registry.Deactivate("p2"))
	sig2, info2, err := h.coordinator.Sign(h.snap.KeyID, message)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 3}, info2.Participants)

	require.True(t, frost.VerifySignature(sig1, msgHash, h.snap.GroupPublicKey))
	require.True(t, frost.VerifySignature(sig2, msgHash, h.snap.GroupPublicKey))
}

func TestThresholdSignQuorumSize(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())

	_, _, err := h.coordinator.ThresholdSign(h.snap.KeyID, []byte("m"), 1)
	require.ErrorIs(t, err, ErrThresholdTooLow)

	sig, info, err := h.coordinator.ThresholdSign(h.snap.KeyID, []byte("m"), 3)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2, 3}, info.Participants)
	msgHash := sha256.Sum256([]byte("m"))
	require.True(t, frost.VerifySignature(sig, msgHash, h.snap.GroupPublicKey))
}

func TestRequestSignatureValidation(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())
	msgHash := sha256.Sum256([]byte("m"))

	_, err := h.coordinator.RequestSignature("missing", msgHash, 0)
	require.ErrorIs(t, err, keys.ErrKeyNotFound)

	// No session is created when the active holders cannot seat the quorum.
	require.NoError(t, h.registry.Deactivate("p2"))
	require.NoError(t, h.registry.Deactivate("p3"))
	_, err = h.coordinator.RequestSignature(h.snap.KeyID, msgHash, 0)
	require.ErrorIs(t, err, party.ErrInsufficientParties)
}

func TestSubmitCommitmentRules(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())
	msgHash := sha256.Sum256([]byte("m"))

	info, err := h.coordinator.RequestSignature(h.snap.KeyID, msgHash, 0)
	require.NoError(t, err)
	require.Equal(t, StatusPending, info.Status)
	require.Equal(t, []uint32{1, 2}, info.Participants)

	com1, _, err := h.engine(t, 1).GenerateSigningCommitment(h.snap.KeyID, msgHash)
	require.NoError(t, err)
	require.NoError(t, h.coordinator.SubmitCommitment(info.SessionID, com1))

	// Duplicate commitment from the same index.
	err = h.coordinator.SubmitCommitment(info.SessionID, com1)
	require.ErrorIs(t, err, ErrDuplicateParticipant)

	// Party 3 is a key holder but not in this session's quorum.
	com3, _, err := h.engine(t, 3).GenerateSigningCommitment(h.snap.KeyID, msgHash)
	require.NoError(t, err)
	err = h.coordinator.SubmitCommitment(info.SessionID, com3)
	require.ErrorIs(t, err, ErrUnknownParticipant)

	got, err := h.coordinator.GetSession(info.SessionID)
	require.NoError(t, err)
	require.Equal(t, StatusCollecting, got.Status)
	require.Equal(t, 1, got.Commitments)

	require.ErrorIs(t, h.coordinator.SubmitCommitment("missing", com1), ErrSessionNotFound)
}

func TestShareRequiresCommitment(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())
	msgHash := sha256.Sum256([]byte("m"))

	info, err := h.coordinator.RequestSignature(h.snap.KeyID, msgHash, 0)
	require.NoError(t, err)

	err = h.coordinator.SubmitPartialSignature(info.SessionID, 1, curve.ScalarFromInt(1))
	require.ErrorIs(t, err, ErrNoCommitment)
}

func TestInvalidShareRejectedWithoutAbort(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())
	msgHash := sha256.Sum256([]byte("m"))

	info, err := h.coordinator.RequestSignature(h.snap.KeyID, msgHash, 0)
	require.NoError(t, err)

	commitments := make([]*frost.Commitment, 0, 2)
	for _, idx := range info.Participants {
		com, _, err := h.engine(t, idx).GenerateSigningCommitment(h.snap.KeyID, msgHash)
		require.NoError(t, err)
		require.NoError(t, h.coordinator.SubmitCommitment(info.SessionID, com))
		commitments = append(commitments, com)
	}

	// A garbage share is rejected; the session stays open.
	err = h.coordinator.SubmitPartialSignature(info.SessionID, 1, curve.ScalarFromInt(42))
	require.ErrorIs(t, err, ErrShareRejected)
	got, err := h.coordinator.GetSession(info.SessionID)
	require.NoError(t, err)
	require.Equal(t, StatusCollecting, got.Status)
	require.Equal(t, 0, got.Shares)

	// The genuine shares still complete it.
	for _, idx := range info.Participants {
		z, err := h.engine(t, idx).GenerateSignatureShare(h.snap.KeyID, msgHash, commitments)
		require.NoError(t, err)
		require.NoError(t, h.coordinator.SubmitPartialSignature(info.SessionID, idx, z))
	}
	got, err = h.coordinator.GetSession(info.SessionID)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, got.Status)
	require.NotNil(t, got.Signature)
	require.True(t, frost.VerifySignature(got.Signature, msgHash, h.snap.GroupPublicKey))
}

func TestSessionExpiryPurgesNonces(t *testing.T) {
	opts := DefaultOptions()
	opts.SessionTimeout = 50 * time.Millisecond
	h := newHarness(t, 3, opts)
	msgHash := sha256.Sum256([]byte("m"))

	info, err := h.coordinator.RequestSignature(h.snap.KeyID, msgHash, 0)
	require.NoError(t, err)

	com1, _, err := h.engine(t, 1).GenerateSigningCommitment(h.snap.KeyID, msgHash)
	require.NoError(t, err)
	require.NoError(t, h.coordinator.SubmitCommitment(info.SessionID, com1))

	time.Sleep(80 * time.Millisecond)

	com2, _, err := h.engine(t, 2).GenerateSigningCommitment(h.snap.KeyID, msgHash)
	require.NoError(t, err)
	err = h.coordinator.SubmitCommitment(info.SessionID, com2)
	require.ErrorIs(t, err, ErrSessionExpired)

	got, err := h.coordinator.GetSession(info.SessionID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)

	// Expiry deleted party 1's nonce, not merely marked it used: the share
	// round fails and a fresh commitment round succeeds.
	_, err = h.engine(t, 1).GenerateSignatureShare(h.snap.KeyID, msgHash, []*frost.Commitment{com1})
	require.ErrorIs(t, err, frost.ErrNoNonce)
	_, _, err = h.engine(t, 1).GenerateSigningCommitment(h.snap.KeyID, msgHash)
	require.NoError(t, err)

	// Late submissions to an expired session keep failing.
	err = h.coordinator.SubmitPartialSignature(info.SessionID, 1, curve.ScalarFromInt(1))
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestSweepExpiresAndCollects(t *testing.T) {
	opts := DefaultOptions()
	opts.SessionTimeout = 10 * time.Millisecond
	opts.Retention = 10 * time.Millisecond
	h := newHarness(t, 3, opts)
	msgHash := sha256.Sum256([]byte("m"))

	info, err := h.coordinator.RequestSignature(h.snap.KeyID, msgHash, 0)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	h.coordinator.Sweep(time.Now())

	got, err := h.coordinator.GetSession(info.SessionID)
	require.NoError(t, err)
	require.Equal(t, StatusExpired, got.Status)

	// Terminal sessions stay queryable for the retention window, then go.
	h.coordinator.Sweep(time.Now().Add(time.Hour))
	_, err = h.coordinator.GetSession(info.SessionID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRevocationFailsOpenSessions(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())
	msgHash := sha256.Sum256([]byte("m"))

	info, err := h.coordinator.RequestSignature(h.snap.KeyID, msgHash, 0)
	require.NoError(t, err)

	require.NoError(t, h.keys.RevokeKey(h.snap.KeyID))

	got, err := h.coordinator.GetSession(info.SessionID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "key revoked", got.Failure)

	_, _, err = h.coordinator.Sign(h.snap.KeyID, []byte("m"))
	require.ErrorIs(t, err, keys.ErrKeyRevoked)
}

func TestMisbehavingPartyReplaced(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())

	// Party 1 lost its share; the session replaces it instead of aborting.
	h.engine(t, 1).DeleteShare(h.snap.KeyID)

	message := []byte("m")
	sig, info, err := h.coordinator.Sign(h.snap.KeyID, message)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, info.Status)
	require.Equal(t, []uint32{2, 3}, info.Participants)

	msgHash := sha256.Sum256(message)
	require.True(t, frost.VerifySignature(sig, msgHash, h.snap.GroupPublicKey))
}

func TestMisbehavingPartyWithoutReplacementFails(t *testing.T) {
	h := newHarness(t, 3, DefaultOptions())

	h.engine(t, 1).DeleteShare(h.snap.KeyID)
	h.engine(t, 3).DeleteShare(h.snap.KeyID)

	_, info, err := h.coordinator.Sign(h.snap.KeyID, []byte("m"))
	require.Error(t, err)
	require.Equal(t, StatusFailed, info.Status)
}
