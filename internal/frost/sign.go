package frost

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"frost-node/internal/curve"
)

// Commitment is a party's public nonce commitment for one signing round:
// D = d*G (hiding) and E = e*G (binding).
type Commitment struct {
	Index   uint32
	Hiding  *curve.Point
	Binding *curve.Point
}

// Signature is an aggregated threshold Schnorr signature. R is the group
// commitment, S the summed response, and RecoveryID the parity of R's
// y-coordinate.
type Signature struct {
	R          *curve.Point
	S          *curve.Scalar
	RecoveryID byte
}

// Bytes returns the 65-byte r||s||v encoding.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, 65)
	out = append(out, curve.AffineX(s.R)...)
	out = append(out, curve.ScalarBytes(s.S)...)
	out = append(out, s.RecoveryID)
	return out
}

// Hex returns the hex encoding of Bytes.
func (s *Signature) Hex() string {
	return hex.EncodeToString(s.Bytes())
}

// GenerateSigningCommitment runs this party's commitment round for a message:
// two fresh random nonces d and e are drawn from a cryptographically secure
// source, their commitments D and E are published, and the nonce pair is
// stored keyed by the message hash until it is consumed by the share round.
// The returned binding hash H(D||E) commits to the pair before other
// parties' commitments are known.
//
// Nonces are never derived from the message; a deterministic derivation
// would repeat the nonce across sessions and leak the long-term share.
func (e *Engine) GenerateSigningCommitment(keyID string, msgHash [32]byte) (*Commitment, []byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.shares[keyID]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}

	d, err := curve.RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	ne, err := curve.RandomScalar()
	if err != nil {
		return nil, nil, err
	}

	nonce := &signingNonce{
		keyID: keyID,
		d:     d,
		e:     ne,
		D:     curve.BaseMult(d),
		E:     curve.BaseMult(ne),
	}
	if stale, ok := e.nonces[msgHash]; ok {
		stale.zeroize()
	}
	e.nonces[msgHash] = nonce

	commitment := &Commitment{Index: e.index, Hiding: nonce.D, Binding: nonce.E}
	bindingHash := curve.HashBytes("com", curve.PointBytes(nonce.D), curve.PointBytes(nonce.E))
	return commitment, bindingHash, nil
}

// GenerateSignatureShare runs this party's share round. It fails with
// ErrNoNonce unless a commitment round was run for the same message hash.
// The stored nonce is consumed and zeroized before any result is returned;
// a second call for the same message fails.
func (e *Engine) GenerateSignatureShare(keyID string, msgHash [32]byte, commitments []*Commitment) (*curve.Scalar, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	nonce, ok := e.nonces[msgHash]
	if !ok || nonce.keyID != keyID {
		return nil, fmt.Errorf("%w: party %d, message %x", ErrNoNonce, e.index, msgHash[:8])
	}
	// Consume immediately; the nonce must not survive a failed attempt.
	delete(e.nonces, msgHash)
	defer nonce.zeroize()

	ks, ok := e.shares[keyID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, keyID)
	}

	var own *Commitment
	for _, c := range commitments {
		if c.Index == e.index {
			own = c
			break
		}
	}
	if own == nil {
		return nil, fmt.Errorf("own commitment missing from commitment set for party %d", e.index)
	}
	if !curve.PointsEqual(own.Hiding, nonce.D) || !curve.PointsEqual(own.Binding, nonce.E) {
		return nil, fmt.Errorf("commitment set does not match party %d's published nonce commitments", e.index)
	}

	factors := bindingFactors(msgHash, commitments)
	R := groupCommitment(commitments, factors)
	c := challenge(R, ks.groupPublicKey, msgHash)

	lambda, err := curve.LagrangeCoefficient(e.index, commitmentIndices(commitments))
	if err != nil {
		return nil, err
	}

	// z = d + rho*e + lambda*s*c
	z := new(curve.Scalar).Set(factors[e.index])
	z.Mul(nonce.e)
	z.Add(nonce.d)
	term := new(curve.Scalar).Set(lambda)
	term.Mul(ks.secret)
	term.Mul(c)
	z.Add(term)
	term.Zero()

	return z, nil
}

// PurgeNonce deletes and zeroizes any stored nonce for the message hash.
// Called when a signing session expires so stale nonces do not accumulate.
func (e *Engine) PurgeNonce(msgHash [32]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if nonce, ok := e.nonces[msgHash]; ok {
		nonce.zeroize()
		delete(e.nonces, msgHash)
	}
}

// AggregateSignatures recomputes the group commitment exactly as the share
// round did, sums the partial signatures, and self-verifies the result
// against the group public key. A signature that fails self-verification is
// never returned; the caller receives ErrAggregationFailed instead.
func AggregateSignatures(log *logrus.Logger, msgHash [32]byte, groupPublicKey *curve.Point, commitments []*Commitment, shares map[uint32]*curve.Scalar) (*Signature, error) {
	if len(shares) != len(commitments) {
		return nil, fmt.Errorf("have %d shares for %d commitments", len(shares), len(commitments))
	}
	for _, c := range commitments {
		if _, ok := shares[c.Index]; !ok {
			return nil, fmt.Errorf("missing signature share from party %d", c.Index)
		}
	}

	factors := bindingFactors(msgHash, commitments)
	R := groupCommitment(commitments, factors)

	s := curve.NewScalar()
	for _, z := range shares {
		s.Add(z)
	}

	sig := &Signature{R: R, S: s}
	if curve.HasOddY(R) {
		sig.RecoveryID = 1
	}

	if !VerifySignature(sig, msgHash, groupPublicKey) {
		log.WithField("message", hex.EncodeToString(msgHash[:8])).Error("Aggregated signature failed self-verification")
		return nil, ErrAggregationFailed
	}
	return sig, nil
}

// VerifySignature checks s*G == R + c*PK for c = H(R, PK, msgHash).
func VerifySignature(sig *Signature, msgHash [32]byte, groupPublicKey *curve.Point) bool {
	c := challenge(sig.R, groupPublicKey, msgHash)
	lhs := curve.BaseMult(sig.S)
	rhs := curve.Add(sig.R, curve.Mult(c, groupPublicKey))
	return curve.PointsEqual(lhs, rhs)
}

// VerifySignatureShare checks one party's partial signature against its
// public verification share: z_i*G == R_i + c*lambda_i*Y_i. It lets the
// coordinator reject a single bad share without aborting the session.
func VerifySignatureShare(index uint32, z *curve.Scalar, msgHash [32]byte, commitments []*Commitment, groupPublicKey, verificationShare *curve.Point) bool {
	var own *Commitment
	for _, c := range commitments {
		if c.Index == index {
			own = c
			break
		}
	}
	if own == nil || verificationShare == nil {
		return false
	}

	factors := bindingFactors(msgHash, commitments)
	R := groupCommitment(commitments, factors)
	c := challenge(R, groupPublicKey, msgHash)

	lambda, err := curve.LagrangeCoefficient(index, commitmentIndices(commitments))
	if err != nil {
		return false
	}

	// R_i = D_i + rho_i*E_i
	ri := curve.Add(own.Hiding, curve.Mult(factors[index], own.Binding))

	lhs := curve.BaseMult(z)
	weight := new(curve.Scalar).Set(c)
	weight.Mul(lambda)
	rhs := curve.Add(ri, curve.Mult(weight, verificationShare))
	return curve.PointsEqual(lhs, rhs)
}

// bindingFactors derives the per-party binding scalar
// rho_i = H(i, msgHash, sorted commitment list). Binding each nonce to the
// full commitment set and message defeats Wagner-style forgeries across
// concurrently open sessions.
func bindingFactors(msgHash [32]byte, commitments []*Commitment) map[uint32]*curve.Scalar {
	ordered := make([]*Commitment, len(commitments))
	copy(ordered, commitments)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Index < ordered[b].Index })

	var encoded []byte
	for _, c := range ordered {
		encoded = append(encoded, indexBytes(c.Index)...)
		encoded = append(encoded, curve.PointBytes(c.Hiding)...)
		encoded = append(encoded, curve.PointBytes(c.Binding)...)
	}

	factors := make(map[uint32]*curve.Scalar, len(ordered))
	for _, c := range ordered {
		factors[c.Index] = curve.HashToScalar("rho", indexBytes(c.Index), msgHash[:], encoded)
	}
	return factors
}

// groupCommitment computes R = sum(D_i + rho_i*E_i) with true elliptic-curve
// point operations.
func groupCommitment(commitments []*Commitment, factors map[uint32]*curve.Scalar) *curve.Point {
	R := curve.Infinity()
	for _, c := range commitments {
		ri := curve.Add(c.Hiding, curve.Mult(factors[c.Index], c.Binding))
		R = curve.Add(R, ri)
	}
	return R
}

// challenge computes c = H(R, PK, msgHash).
func challenge(R, groupPublicKey *curve.Point, msgHash [32]byte) *curve.Scalar {
	return curve.HashToScalar("chal", curve.PointBytes(R), curve.PointBytes(groupPublicKey), msgHash[:])
}

func commitmentIndices(commitments []*Commitment) []uint32 {
	indices := make([]uint32, len(commitments))
	for i, c := range commitments {
		indices[i] = c.Index
	}
	return indices
}

func indexBytes(i uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], i)
	return b[:]
}
