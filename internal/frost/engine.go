// Package frost implements the two-round FROST threshold Schnorr protocol:
// distributed key generation with Feldman verifiable secret sharing, share
// refresh (rotation), nonce-commitment and signature-share rounds, and
// signature aggregation.
package frost

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"frost-node/internal/curve"
)

var (
	// ErrInvalidState is returned when a key generation step is invoked out
	// of order, e.g. a second contribution before the first is finalized.
	ErrInvalidState = errors.New("key generation in invalid state")
	// ErrNoNonce is returned when a signature share is requested without a
	// prior commitment round for the same message.
	ErrNoNonce = errors.New("no signing nonce for message")
	// ErrUnknownKey is returned when the party holds no share for the key.
	ErrUnknownKey = errors.New("no key share held for key")
	// ErrInvalidShare is returned when a received secret share fails the
	// verifiable-secret-sharing check against the sender's commitments.
	ErrInvalidShare = errors.New("secret share failed commitment verification")
	// ErrAggregationFailed is returned when an aggregated signature does not
	// verify against the group public key.
	ErrAggregationFailed = errors.New("aggregated signature failed verification")
)

// Contribution is the public part of one party's key generation round:
// commitments A_k = a_k*G to its polynomial coefficients.
type Contribution struct {
	Index       uint32
	Commitments []*curve.Point
}

// ShareEnvelope carries one polynomial evaluation f_from(to) addressed to a
// single recipient. In a deployment it travels over an encrypted channel;
// here the coordinator relays it between in-process parties.
type ShareEnvelope struct {
	From  uint32
	To    uint32
	Value *curve.Scalar
}

// KeyGenResult is the public output of a finalized key generation or refresh.
type KeyGenResult struct {
	Index              uint32
	GroupPublicKey     *curve.Point
	GroupAddress       string
	VerificationShares map[uint32]*curve.Point
}

// keyShare is a party's long-term secret share for one key. The secret never
// leaves the engine; zeroize releases it on rotation or revocation.
type keyShare struct {
	secret             *curve.Scalar
	groupPublicKey     *curve.Point
	verificationShares map[uint32]*curve.Point
	participants       []uint32
	threshold          int
}

func (ks *keyShare) zeroize() {
	ks.secret.Zero()
}

// dkgState holds a party's ephemeral polynomial during one key generation or
// refresh exchange. Destroyed on finalize.
type dkgState struct {
	threshold    int
	participants []uint32
	coeffs       []*curve.Scalar
	commitments  []*curve.Point
	received     map[uint32]*curve.Scalar
	refresh      bool
}

func (st *dkgState) zeroize() {
	for _, c := range st.coeffs {
		c.Zero()
	}
	for _, s := range st.received {
		s.Zero()
	}
}

// signingNonce is the pair of one-time scalars behind a nonce commitment,
// keyed by message hash. Consumed exactly once; reuse across messages would
// leak the long-term share.
type signingNonce struct {
	keyID string
	d, e  *curve.Scalar
	D, E  *curve.Point
}

func (n *signingNonce) zeroize() {
	n.d.Zero()
	n.e.Zero()
}

// Engine is the party-side protocol endpoint for a single signing party. It
// owns the party's ephemeral key generation state, long-term key shares, and
// one-time signing nonces. One engine instance exists per party; the
// coordinator reaches it through the party registry the way a deployment
// would reach a remote party over RPC.
type Engine struct {
	mu     sync.Mutex
	index  uint32
	log    *logrus.Logger
	dkg    map[string]*dkgState
	shares map[string]*keyShare
	nonces map[[32]byte]*signingNonce
}

// NewEngine creates the protocol endpoint for the party at the given index.
func NewEngine(index uint32, log *logrus.Logger) *Engine {
	return &Engine{
		index:  index,
		log:    log,
		dkg:    make(map[string]*dkgState),
		shares: make(map[string]*keyShare),
		nonces: make(map[[32]byte]*signingNonce),
	}
}

// Index returns the party's interpolation index.
func (e *Engine) Index() uint32 {
	return e.index
}

// GenerateContribution starts this party's side of a key generation: it
// samples a secret and a random degree t-1 polynomial over it, and returns
// public coefficient commitments plus one private evaluation addressed to
// each other participant. Calling it again for the same key before
// FinalizeKeyGen fails with ErrInvalidState.
func (e *Engine) GenerateContribution(keyID string, threshold int, participants []uint32) (*Contribution, []*ShareEnvelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.dkg[keyID]; exists {
		return nil, nil, fmt.Errorf("%w: contribution already generated for key %s", ErrInvalidState, keyID)
	}
	if _, exists := e.shares[keyID]; exists {
		return nil, nil, fmt.Errorf("%w: key %s already finalized", ErrInvalidState, keyID)
	}

	coeffs, err := curve.SamplePolynomial(threshold - 1)
	if err != nil {
		return nil, nil, err
	}
	return e.startExchange(keyID, threshold, participants, coeffs, false)
}

// GenerateRefreshContribution starts this party's side of a share refresh
// (key rotation): the same exchange as key generation but over a polynomial
// with a zero constant term, so the summed refresh leaves the group public
// key unchanged while replacing every share.
func (e *Engine) GenerateRefreshContribution(keyID string) (*Contribution, []*ShareEnvelope, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ks, ok := e.shares[keyID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}
	if _, exists := e.dkg[keyID]; exists {
		return nil, nil, fmt.Errorf("%w: refresh already in progress for key %s", ErrInvalidState, keyID)
	}

	coeffs, err := curve.SamplePolynomial(ks.threshold - 1)
	if err != nil {
		return nil, nil, err
	}
	coeffs[0].Zero()
	return e.startExchange(keyID, ks.threshold, ks.participants, coeffs, true)
}

func (e *Engine) startExchange(keyID string, threshold int, participants []uint32, coeffs []*curve.Scalar, refresh bool) (*Contribution, []*ShareEnvelope, error) {
	commitments := make([]*curve.Point, len(coeffs))
	for k, c := range coeffs {
		commitments[k] = curve.BaseMult(c)
	}

	envelopes := make([]*ShareEnvelope, 0, len(participants)-1)
	for _, to := range participants {
		if to == e.index {
			continue
		}
		envelopes = append(envelopes, &ShareEnvelope{
			From:  e.index,
			To:    to,
			Value: curve.EvalPolynomial(coeffs, curve.ScalarFromInt(to)),
		})
	}

	e.dkg[keyID] = &dkgState{
		threshold:    threshold,
		participants: curve.SortIndices(participants),
		coeffs:       coeffs,
		commitments:  commitments,
		received:     make(map[uint32]*curve.Scalar),
		refresh:      refresh,
	}

	return &Contribution{Index: e.index, Commitments: commitments}, envelopes, nil
}

// ReceiveShare verifies a private evaluation from another participant against
// that participant's public coefficient commitments (the Feldman check
// f_j(i)*G == sum_k i^k * A_jk) and stores it for finalization.
func (e *Engine) ReceiveShare(keyID string, env *ShareEnvelope, senderCommitments []*curve.Point) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.dkg[keyID]
	if !ok {
		return fmt.Errorf("%w: no exchange in progress for key %s", ErrInvalidState, keyID)
	}
	if env.To != e.index {
		return fmt.Errorf("share addressed to party %d delivered to party %d", env.To, e.index)
	}

	lhs := curve.BaseMult(env.Value)
	rhs := evalCommitments(senderCommitments, e.index)
	if !curve.PointsEqual(lhs, rhs) {
		return fmt.Errorf("%w: from party %d", ErrInvalidShare, env.From)
	}

	st.received[env.From] = new(curve.Scalar).Set(env.Value)
	return nil
}

// FinalizeKeyGen combines the verified evaluations received from every other
// participant with this party's own evaluation into its long-term share,
// derives the group public key and address from the coefficient commitments,
// and destroys the ephemeral polynomial. For a refresh exchange the new share
// replaces the old one, the old secret is zeroized, and the group public key
// is checked to be unchanged.
func (e *Engine) FinalizeKeyGen(keyID string, contributions []*Contribution) (*KeyGenResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st, ok := e.dkg[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: no exchange in progress for key %s", ErrInvalidState, keyID)
	}
	defer func() {
		st.zeroize()
		delete(e.dkg, keyID)
	}()

	byIndex := make(map[uint32]*Contribution, len(contributions))
	for _, c := range contributions {
		byIndex[c.Index] = c
	}
	for _, p := range st.participants {
		if _, ok := byIndex[p]; !ok {
			return nil, fmt.Errorf("missing contribution from party %d", p)
		}
		if p != e.index {
			if _, ok := st.received[p]; !ok {
				return nil, fmt.Errorf("missing verified share from party %d", p)
			}
		}
	}

	// Aggregate share: own evaluation at our index plus every verified
	// evaluation received from the other parties.
	secret := curve.EvalPolynomial(st.coeffs, curve.ScalarFromInt(e.index))
	for _, s := range st.received {
		secret.Add(s)
	}

	// Group key from the constant-term commitments. A refresh contributes
	// the identity, leaving the key unchanged.
	delta := curve.Infinity()
	for _, p := range st.participants {
		delta = curve.Add(delta, byIndex[p].Commitments[0])
	}

	verification := make(map[uint32]*curve.Point, len(st.participants))
	for _, p := range st.participants {
		y := curve.Infinity()
		for _, q := range st.participants {
			y = curve.Add(y, evalCommitments(byIndex[q].Commitments, p))
		}
		verification[p] = y
	}

	ks := &keyShare{
		secret:             secret,
		verificationShares: verification,
		participants:       st.participants,
		threshold:          st.threshold,
	}

	if st.refresh {
		old, ok := e.shares[keyID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
		}
		if !curve.IsInfinity(delta) {
			return nil, errors.New("refresh contributions do not sum to zero")
		}
		ks.secret.Add(old.secret)
		ks.groupPublicKey = old.groupPublicKey
		for p, y := range verification {
			ks.verificationShares[p] = curve.Add(old.verificationShares[p], y)
		}
		old.zeroize()
	} else {
		if curve.IsInfinity(delta) {
			return nil, errors.New("group public key is the identity")
		}
		ks.groupPublicKey = delta
	}

	e.shares[keyID] = ks
	e.log.WithFields(logrus.Fields{
		"key":     keyID,
		"party":   e.index,
		"refresh": st.refresh,
	}).Info("Key generation exchange finalized")

	return &KeyGenResult{
		Index:              e.index,
		GroupPublicKey:     ks.groupPublicKey,
		GroupAddress:       curve.PubKeyToAddress(ks.groupPublicKey),
		VerificationShares: ks.verificationShares,
	}, nil
}

// AbortExchange discards any in-progress key generation or refresh state for
// the key, zeroizing the ephemeral polynomial. Called when another
// participant's failure forces the exchange to be abandoned.
func (e *Engine) AbortExchange(keyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.dkg[keyID]; ok {
		st.zeroize()
		delete(e.dkg, keyID)
	}
}

// DeleteShare zeroizes and removes this party's share for the key. Used on
// revocation and after a completed rotation has replaced the share.
func (e *Engine) DeleteShare(keyID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ks, ok := e.shares[keyID]; ok {
		ks.zeroize()
		delete(e.shares, keyID)
	}
}

// HasShare reports whether the party holds a share for the key.
func (e *Engine) HasShare(keyID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.shares[keyID]
	return ok
}

// evalCommitments evaluates a commitment vector at party index x in the
// exponent: sum_k x^k * A_k.
func evalCommitments(commitments []*curve.Point, x uint32) *curve.Point {
	xs := curve.ScalarFromInt(x)
	power := curve.ScalarFromInt(1)
	sum := curve.Infinity()
	for _, a := range commitments {
		// A zero constant term in a refresh exchange commits to infinity;
		// it contributes nothing to the evaluation.
		if !curve.IsInfinity(a) {
			sum = curve.Add(sum, curve.Mult(power, a))
		}
		power = new(curve.Scalar).Set(power).Mul(xs)
	}
	return sum
}
