// Package signing coordinates threshold-signing sessions: it opens a session
// per signature request, collects nonce commitments and signature shares
// from a quorum of parties, enforces uniqueness, threshold, and expiry, and
// triggers aggregation.
package signing

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"frost-node/internal/curve"
	"frost-node/internal/frost"
	"frost-node/internal/keys"
	"frost-node/internal/party"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("signing session not found")
	// ErrSessionExpired is returned for submissions past the session
	// deadline or to an already-expired session.
	ErrSessionExpired = errors.New("signing session expired")
	// ErrSessionTerminal is returned for submissions to a completed or
	// failed session.
	ErrSessionTerminal = errors.New("signing session already finished")
	// ErrDuplicateParticipant is returned when a party submits a second
	// commitment or share to the same session.
	ErrDuplicateParticipant = errors.New("participant already submitted")
	// ErrUnknownParticipant is returned for submissions from a party outside
	// the session's quorum.
	ErrUnknownParticipant = errors.New("participant not in session quorum")
	// ErrNoCommitment is returned when a share arrives from a party that
	// never submitted a commitment.
	ErrNoCommitment = errors.New("no commitment from participant")
	// ErrShareRejected is returned when a partial signature fails
	// verification; the session itself continues.
	ErrShareRejected = errors.New("signature share failed verification")
	// ErrThresholdTooLow is returned when a caller requests a quorum smaller
	// than the key's configured minimum.
	ErrThresholdTooLow = errors.New("threshold below the key's minimum")
)

// Options tunes session lifetimes.
type Options struct {
	SessionTimeout time.Duration // deadline for collecting a full quorum
	SweepInterval  time.Duration // cadence of the expiry/GC sweep
	Retention      time.Duration // how long terminal sessions stay queryable
}

// DefaultOptions returns the coordinator defaults.
func DefaultOptions() Options {
	return Options{
		SessionTimeout: 60 * time.Second,
		SweepInterval:  10 * time.Second,
		Retention:      5 * time.Minute,
	}
}

// Coordinator owns every signing session. Sessions are independent: each is
// serialized behind its own lock and there is no global lock across them.
type Coordinator struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	registry *party.Registry
	keys     *keys.Manager
	opts     Options
	log      *logrus.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCoordinator creates a signing coordinator and registers itself for key
// revocation notifications.
func NewCoordinator(registry *party.Registry, keyManager *keys.Manager, opts Options, log *logrus.Logger) *Coordinator {
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = DefaultOptions().SessionTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultOptions().SweepInterval
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultOptions().Retention
	}
	c := &Coordinator{
		sessions: make(map[string]*Session),
		registry: registry,
		keys:     keyManager,
		opts:     opts,
		log:      log,
		stopCh:   make(chan struct{}),
	}
	keyManager.OnRevoke(c.FailSessionsForKey)
	return c
}

// Start launches the background sweeper.
func (c *Coordinator) Start() {
	go c.sweepLoop()
}

// Stop terminates the background sweeper.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// RequestSignature validates the key, selects a deterministic quorum of
// active parties, and opens a session in the pending state. No session is
// created when the active set cannot reach the threshold.
func (c *Coordinator) RequestSignature(keyID string, msgHash [32]byte, threshold int) (*Info, error) {
	sess, err := c.newSession(keyID, msgHash, threshold, nil)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.infoLocked(), nil
}

func (c *Coordinator) newSession(keyID string, msgHash [32]byte, threshold int, exclude map[uint32]bool) (*Session, error) {
	snap, err := c.keys.Get(keyID)
	if err != nil {
		return nil, err
	}
	if snap.Revoked {
		return nil, fmt.Errorf("%w: %s", keys.ErrKeyRevoked, keyID)
	}
	if threshold == 0 {
		threshold = snap.Threshold
	}
	if threshold < snap.Threshold {
		return nil, fmt.Errorf("%w: requested %d, minimum %d", ErrThresholdTooLow, threshold, snap.Threshold)
	}

	quorum, err := c.selectQuorum(snap, threshold, exclude)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		sessionID:      uuid.New().String(),
		keyID:          keyID,
		messageHash:    msgHash,
		threshold:      threshold,
		participants:   quorum,
		commitments:    make(map[uint32]*frost.Commitment),
		shares:         make(map[uint32]*curve.Scalar),
		groupPublicKey: snap.GroupPublicKey,
		verification:   snap.Verification,
		status:         StatusPending,
		createdAt:      now,
		expiresAt:      now.Add(c.opts.SessionTimeout),
		done:           make(chan struct{}),
	}

	c.mu.Lock()
	c.sessions[sess.sessionID] = sess
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"session":      sess.sessionID,
		"key":          keyID,
		"participants": quorum,
	}).Info("Signing session opened")
	return sess, nil
}

// selectQuorum picks the threshold lowest-indexed parties that are both
// holders of the key and currently active.
func (c *Coordinator) selectQuorum(snap *keys.Snapshot, threshold int, exclude map[uint32]bool) ([]uint32, error) {
	holders := make(map[uint32]bool, len(snap.Participants))
	for _, p := range snap.Participants {
		holders[p] = true
	}

	quorum := make([]uint32, 0, threshold)
	for _, p := range c.registry.ListActive() {
		if len(quorum) == threshold {
			break
		}
		if holders[p.Index] && !exclude[p.Index] {
			quorum = append(quorum, p.Index)
		}
	}
	if len(quorum) < threshold {
		return nil, fmt.Errorf("%w: need %d active key holders, have %d",
			party.ErrInsufficientParties, threshold, len(quorum))
	}
	return quorum, nil
}

// SubmitCommitment records a party's Round 1 nonce commitment. Valid only
// while the session is pending or collecting; a second commitment from the
// same index is rejected without changing the participant set.
func (c *Coordinator) SubmitCommitment(sessionID string, commitment *frost.Commitment) error {
	sess, err := c.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := c.checkOpenLocked(sess); err != nil {
		return err
	}
	if !sess.hasParticipantLocked(commitment.Index) {
		return fmt.Errorf("%w: party %d", ErrUnknownParticipant, commitment.Index)
	}
	if _, dup := sess.commitments[commitment.Index]; dup {
		return fmt.Errorf("%w: commitment from party %d", ErrDuplicateParticipant, commitment.Index)
	}

	sess.commitments[commitment.Index] = commitment
	if sess.status == StatusPending {
		sess.status = StatusCollecting
	}
	return nil
}

// SubmitPartialSignature records a party's Round 2 signature share. The
// party must have committed in Round 1. An invalid share is rejected and
// logged but does not abort the session. Reaching the threshold triggers
// aggregation exactly once, under the session lock.
func (c *Coordinator) SubmitPartialSignature(sessionID string, index uint32, share *curve.Scalar) error {
	sess, err := c.session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := c.checkOpenLocked(sess); err != nil {
		return err
	}
	if _, ok := sess.commitments[index]; !ok {
		return fmt.Errorf("%w: party %d", ErrNoCommitment, index)
	}
	if _, dup := sess.shares[index]; dup {
		return fmt.Errorf("%w: share from party %d", ErrDuplicateParticipant, index)
	}

	commitments := sess.commitmentListLocked()
	if !frost.VerifySignatureShare(index, share, sess.messageHash, commitments, sess.groupPublicKey, sess.verification[index]) {
		c.log.WithFields(logrus.Fields{"session": sess.sessionID, "party": index}).Warn("Rejected invalid signature share")
		return fmt.Errorf("%w: party %d", ErrShareRejected, index)
	}

	sess.shares[index] = share
	if len(sess.shares) < sess.threshold {
		return nil
	}

	sig, err := frost.AggregateSignatures(c.log, sess.messageHash, sess.groupPublicKey, commitments, sess.shares)
	if err != nil {
		sess.finishLocked(StatusFailed, err.Error())
		c.log.WithFields(logrus.Fields{"session": sess.sessionID, "key": sess.keyID}).Error("Signing session failed at aggregation")
		return nil
	}
	sess.result = sig
	sess.finishLocked(StatusComplete, "")
	c.log.WithFields(logrus.Fields{"session": sess.sessionID, "key": sess.keyID}).Info("Signing session complete")
	return nil
}

// GetSession returns a snapshot of the session for polling callers.
func (c *Coordinator) GetSession(sessionID string) (*Info, error) {
	sess, err := c.session(sessionID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.infoLocked(), nil
}

// Sign hashes the message with SHA-256 and drives a full signing session at
// the key's configured threshold, blocking until a terminal state.
func (c *Coordinator) Sign(keyID string, message []byte) (*frost.Signature, *Info, error) {
	return c.ThresholdSign(keyID, message, 0)
}

// ThresholdSign is Sign with a caller-chosen quorum size, which must be at
// least the key's configured threshold (0 means the key's threshold). A
// misbehaving participant is dropped and replaced from the remaining active
// set as long as the remainder can still reach the threshold.
func (c *Coordinator) ThresholdSign(keyID string, message []byte, threshold int) (*frost.Signature, *Info, error) {
	msgHash := sha256.Sum256(message)

	sess, err := c.newSession(keyID, msgHash, threshold, nil)
	if err != nil {
		return nil, nil, err
	}

	excluded := make(map[uint32]bool)
	for {
		badParty, err := c.driveRounds(sess)
		if err == nil {
			break
		}
		if badParty == 0 {
			return nil, c.snapshot(sess), err
		}

		// Drop the misbehaving party and retry with a replacement quorum if
		// the remaining active holders can still reach the threshold.
		excluded[badParty] = true
		c.log.WithFields(logrus.Fields{
			"session": sess.sessionID,
			"party":   badParty,
		}).Warn("Participant misbehaved; soliciting replacement")

		sess.mu.Lock()
		snapErr := c.checkOpenLocked(sess)
		if snapErr != nil {
			sess.mu.Unlock()
			return nil, c.snapshot(sess), snapErr
		}
		snap, kerr := c.keys.Get(sess.keyID)
		if kerr != nil {
			sess.finishLocked(StatusFailed, kerr.Error())
			sess.mu.Unlock()
			return nil, c.snapshot(sess), kerr
		}
		replacement, qerr := c.selectQuorum(snap, sess.threshold, excluded)
		if qerr != nil {
			sess.finishLocked(StatusFailed, qerr.Error())
			sess.mu.Unlock()
			return nil, c.snapshot(sess), fmt.Errorf("cannot replace party %d: %w", badParty, qerr)
		}
		c.purgeNonces(sess.participants, sess.messageHash)
		sess.resetLocked(replacement)
		sess.mu.Unlock()
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	switch sess.status {
	case StatusComplete:
		return sess.result, sess.infoLocked(), nil
	case StatusExpired:
		return nil, sess.infoLocked(), ErrSessionExpired
	default:
		return nil, sess.infoLocked(), fmt.Errorf("signing session failed: %s", sess.failure)
	}
}

// driveRounds runs both protocol rounds against the session's current
// quorum. On a per-party failure it returns that party's index so the caller
// can replace it; an index of 0 marks a session-level error.
func (c *Coordinator) driveRounds(sess *Session) (uint32, error) {
	sess.mu.Lock()
	participants := make([]uint32, len(sess.participants))
	copy(participants, sess.participants)
	keyID := sess.keyID
	msgHash := sess.messageHash
	sessionID := sess.sessionID
	sess.mu.Unlock()

	// Round 1: nonce commitments.
	for _, idx := range participants {
		en, ok := c.registry.Engine(idx)
		if !ok {
			return idx, fmt.Errorf("party %d has no engine", idx)
		}
		commitment, _, err := en.GenerateSigningCommitment(keyID, msgHash)
		if err != nil {
			return idx, err
		}
		if err := c.SubmitCommitment(sessionID, commitment); err != nil {
			return 0, err
		}
	}

	sess.mu.Lock()
	commitments := sess.commitmentListLocked()
	sess.mu.Unlock()

	// Round 2: signature shares.
	for _, idx := range participants {
		en, _ := c.registry.Engine(idx)
		share, err := en.GenerateSignatureShare(keyID, msgHash, commitments)
		if err != nil {
			return idx, err
		}
		if err := c.SubmitPartialSignature(sessionID, idx, share); err != nil {
			if errors.Is(err, ErrShareRejected) {
				return idx, err
			}
			return 0, err
		}
	}
	return 0, nil
}

// FailSessionsForKey transitions every non-terminal session for the key to
// failed and purges their nonces. Invoked when the key is revoked.
func (c *Coordinator) FailSessionsForKey(keyID string) {
	c.mu.RLock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		sessions = append(sessions, sess)
	}
	c.mu.RUnlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		if sess.keyID == keyID && !sess.status.terminal() {
			c.purgeNonces(sess.participants, sess.messageHash)
			sess.finishLocked(StatusFailed, "key revoked")
			c.log.WithFields(logrus.Fields{"session": sess.sessionID, "key": keyID}).Warn("Session failed: key revoked")
		}
		sess.mu.Unlock()
	}
}

func (c *Coordinator) session(sessionID string) (*Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sess, ok := c.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return sess, nil
}

// checkOpenLocked rejects submissions to terminal sessions and enforces the
// deadline, expiring the session and purging its nonces when passed. The
// caller holds the session lock.
func (c *Coordinator) checkOpenLocked(sess *Session) error {
	switch {
	case sess.status == StatusExpired:
		return fmt.Errorf("%w: %s", ErrSessionExpired, sess.sessionID)
	case sess.status.terminal():
		return fmt.Errorf("%w: %s is %s", ErrSessionTerminal, sess.sessionID, sess.status)
	case time.Now().After(sess.expiresAt):
		c.purgeNonces(sess.participants, sess.messageHash)
		sess.finishLocked(StatusExpired, "deadline exceeded")
		c.log.WithField("session", sess.sessionID).Warn("Signing session expired")
		return fmt.Errorf("%w: %s", ErrSessionExpired, sess.sessionID)
	}
	return nil
}

// purgeNonces deletes the one-time nonces held by the given parties for the
// message, so expiry bounds nonce storage and removes stale unused nonces.
func (c *Coordinator) purgeNonces(participants []uint32, msgHash [32]byte) {
	for _, idx := range participants {
		if en, ok := c.registry.Engine(idx); ok {
			en.PurgeNonce(msgHash)
		}
	}
}

func (c *Coordinator) snapshot(sess *Session) *Info {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.infoLocked()
}

// sweepLoop periodically expires overdue sessions and garbage-collects
// terminal ones past the retention window.
func (c *Coordinator) sweepLoop() {
	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep(time.Now())
		case <-c.stopCh:
			return
		}
	}
}

// Sweep performs one expiry and garbage-collection pass.
func (c *Coordinator) Sweep(now time.Time) {
	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, sess := range c.sessions {
		sessions = append(sessions, sess)
	}
	c.mu.Unlock()

	var remove []string
	for _, sess := range sessions {
		sess.mu.Lock()
		if !sess.status.terminal() && now.After(sess.expiresAt) {
			c.purgeNonces(sess.participants, sess.messageHash)
			sess.finishLocked(StatusExpired, "deadline exceeded")
			c.log.WithField("session", sess.sessionID).Warn("Signing session expired")
		}
		if sess.status.terminal() && now.Sub(sess.terminalAt) > c.opts.Retention {
			remove = append(remove, sess.sessionID)
		}
		sess.mu.Unlock()
	}

	if len(remove) > 0 {
		c.mu.Lock()
		for _, id := range remove {
			delete(c.sessions, id)
		}
		c.mu.Unlock()
		c.log.WithField("sessions", len(remove)).Debug("Garbage-collected terminal signing sessions")
	}
}
