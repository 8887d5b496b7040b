package signing

import (
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"frost-node/internal/curve"
	"frost-node/internal/frost"
)

// Status is a signing session's state-machine state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusCollecting Status = "collecting"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
	StatusExpired    Status = "expired"
)

func (s Status) terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusExpired
}

// Session is the per-signing-request state machine. It collects nonce
// commitments, then signature shares, from its participant quorum. All
// mutations are serialized behind mu so concurrent submissions cannot race
// the threshold check into a double aggregation.
type Session struct {
	mu sync.Mutex

	sessionID   string
	keyID       string
	messageHash [32]byte
	threshold   int

	participants   []uint32
	commitments    map[uint32]*frost.Commitment
	shares         map[uint32]*curve.Scalar
	groupPublicKey *curve.Point
	verification   map[uint32]*curve.Point

	status     Status
	createdAt  time.Time
	expiresAt  time.Time
	terminalAt time.Time
	result     *frost.Signature
	failure    string

	done chan struct{}
}

// Info is a read-only snapshot of a session for observability callers.
type Info struct {
	SessionID    string           `json:"sessionId"`
	KeyID        string           `json:"keyId"`
	MessageHash  string           `json:"messageHash"`
	Status       Status           `json:"status"`
	Threshold    int              `json:"threshold"`
	Participants []uint32         `json:"participants"`
	Commitments  int              `json:"collectedCommitments"`
	Shares       int              `json:"collectedShares"`
	ExpiresAt    time.Time        `json:"expiresAt"`
	Failure      string           `json:"failure,omitempty"`
	Signature    *frost.Signature `json:"-"`
}

func (s *Session) infoLocked() *Info {
	participants := make([]uint32, len(s.participants))
	copy(participants, s.participants)
	return &Info{
		SessionID:    s.sessionID,
		KeyID:        s.keyID,
		MessageHash:  hex.EncodeToString(s.messageHash[:]),
		Status:       s.status,
		Threshold:    s.threshold,
		Participants: participants,
		Commitments:  len(s.commitments),
		Shares:       len(s.shares),
		ExpiresAt:    s.expiresAt,
		Failure:      s.failure,
		Signature:    s.result,
	}
}

// commitmentListLocked returns the collected commitments ordered by party
// index, the canonical set distributed to the share round.
func (s *Session) commitmentListLocked() []*frost.Commitment {
	list := make([]*frost.Commitment, 0, len(s.commitments))
	for _, c := range s.commitments {
		list = append(list, c)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Index < list[b].Index })
	return list
}

func (s *Session) hasParticipantLocked(index uint32) bool {
	for _, p := range s.participants {
		if p == index {
			return true
		}
	}
	return false
}

// finishLocked moves the session to a terminal state exactly once and wakes
// any blocked caller.
func (s *Session) finishLocked(status Status, failure string) {
	if s.status.terminal() {
		return
	}
	s.status = status
	s.failure = failure
	s.terminalAt = time.Now()
	close(s.done)
}

// resetLocked restarts collection with a replacement quorum after a
// participant was dropped. The session identity and deadline are unchanged;
// commitments and shares collected so far are discarded.
func (s *Session) resetLocked(participants []uint32) {
	s.participants = curve.SortIndices(participants)
	s.commitments = make(map[uint32]*frost.Commitment)
	s.shares = make(map[uint32]*curve.Scalar)
	s.status = StatusPending
}
