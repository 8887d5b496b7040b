// Package curve provides scalar and point arithmetic over secp256k1 for the
// threshold-signing protocol: modular arithmetic over the curve order,
// polynomial sampling and evaluation, Lagrange interpolation weights, and
// byte conversions. All functions are pure and hold no state.
package curve

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Scalar is an integer modulo the secp256k1 group order.
type Scalar = secp256k1.ModNScalar

// Point is a point on the secp256k1 curve in Jacobian coordinates.
type Point = secp256k1.JacobianPoint

// hashPrefix domain-separates every protocol hash from other users of the
// same hash function.
const hashPrefix = "FROST-SECP256K1-BLAKE2B-v1"

// ErrInvalidPoint is returned when a serialized point cannot be decoded.
var ErrInvalidPoint = errors.New("invalid curve point encoding")

// NewScalar returns a zero scalar.
func NewScalar() *Scalar {
	return new(Scalar)
}

// RandomScalar returns a uniformly random non-zero scalar drawn from a
// cryptographically secure source.
func RandomScalar() (*Scalar, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to sample random scalar: %w", err)
	}
	s := new(Scalar).Set(&priv.Key)
	priv.Key.Zero()
	return s, nil
}

// ScalarFromInt converts a small non-negative integer (a party index) to a
// scalar.
func ScalarFromInt(i uint32) *Scalar {
	return new(Scalar).SetInt(i)
}

// ScalarFromBytes interprets b as a big-endian integer reduced modulo the
// group order.
func ScalarFromBytes(b []byte) *Scalar {
	s := new(Scalar)
	s.SetByteSlice(b)
	return s
}

// ScalarBytes returns the canonical 32-byte big-endian encoding of s.
func ScalarBytes(s *Scalar) []byte {
	b := s.Bytes()
	return b[:]
}

// BaseMult returns k*G.
func BaseMult(k *Scalar) *Point {
	var p Point
	secp256k1.ScalarBaseMultNonConst(k, &p)
	return &p
}

// Mult returns k*P.
func Mult(k *Scalar, p *Point) *Point {
	var r Point
	secp256k1.ScalarMultNonConst(k, p, &r)
	return &r
}

// Add returns a+b.
func Add(a, b *Point) *Point {
	var r Point
	secp256k1.AddNonConst(a, b, &r)
	return &r
}

// Infinity returns the point at infinity, the additive identity.
func Infinity() *Point {
	return new(Point)
}

// IsInfinity reports whether p is the point at infinity.
func IsInfinity(p *Point) bool {
	var c Point
	c.Set(p)
	c.X.Normalize()
	c.Y.Normalize()
	c.Z.Normalize()
	return (c.X.IsZero() && c.Y.IsZero()) || c.Z.IsZero()
}

// PointBytes returns the 33-byte compressed encoding of p. The point at
// infinity encodes as 33 zero bytes; it never appears in honest protocol
// transcripts.
func PointBytes(p *Point) []byte {
	if IsInfinity(p) {
		return make([]byte, 33)
	}
	var a Point
	a.Set(p)
	a.ToAffine()
	return secp256k1.NewPublicKey(&a.X, &a.Y).SerializeCompressed()
}

// ParsePoint decodes a 33-byte compressed point.
func ParsePoint(b []byte) (*Point, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	var p Point
	pub.AsJacobian(&p)
	return &p, nil
}

// PointsEqual reports whether a and b represent the same curve point.
func PointsEqual(a, b *Point) bool {
	if IsInfinity(a) || IsInfinity(b) {
		return IsInfinity(a) && IsInfinity(b)
	}
	var ca, cb Point
	ca.Set(a)
	cb.Set(b)
	ca.ToAffine()
	cb.ToAffine()
	return ca.X.Equals(&cb.X) && ca.Y.Equals(&cb.Y)
}

// HasOddY reports the parity of p's affine y-coordinate, used for the
// signature recovery id.
func HasOddY(p *Point) bool {
	var a Point
	a.Set(p)
	a.ToAffine()
	return a.Y.IsOdd()
}

// AffineX returns the 32-byte big-endian affine x-coordinate of p.
func AffineX(p *Point) []byte {
	var a Point
	a.Set(p)
	a.ToAffine()
	b := a.X.Bytes()
	return b[:]
}

// SamplePolynomial returns degree+1 random coefficients [a0..aDegree] for a
// polynomial over the scalar field.
func SamplePolynomial(degree int) ([]*Scalar, error) {
	coeffs := make([]*Scalar, degree+1)
	for i := range coeffs {
		c, err := RandomScalar()
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}
	return coeffs, nil
}

// EvalPolynomial evaluates the polynomial with the given coefficients at x
// using Horner's rule.
func EvalPolynomial(coeffs []*Scalar, x *Scalar) *Scalar {
	result := new(Scalar).Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result.Mul(x)
		result.Add(coeffs[i])
	}
	return result
}

// LagrangeCoefficient computes the interpolation weight for party index i
// when reconstructing at x=0 over the given participant index set. The set
// must contain i and every index must be distinct and non-zero.
func LagrangeCoefficient(i uint32, indices []uint32) (*Scalar, error) {
	found := false
	num := ScalarFromInt(1)
	den := ScalarFromInt(1)
	for _, j := range indices {
		if j == i {
			found = true
			continue
		}
		num.Mul(ScalarFromInt(j))
		diff := ScalarFromInt(j)
		diff.Add(new(Scalar).NegateVal(ScalarFromInt(i)))
		if diff.IsZero() {
			return nil, fmt.Errorf("duplicate participant index %d", j)
		}
		den.Mul(diff)
	}
	if !found {
		return nil, fmt.Errorf("index %d not in participant set", i)
	}
	den.InverseNonConst()
	return num.Mul(den), nil
}

// HashToScalar hashes the tagged input chunks to a scalar using BLAKE2b-256
// with the protocol's domain-separation prefix.
func HashToScalar(tag string, chunks ...[]byte) *Scalar {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(hashPrefix))
	h.Write([]byte(tag))
	for _, c := range chunks {
		h.Write(c)
	}
	return ScalarFromBytes(h.Sum(nil))
}

// HashBytes hashes the tagged input chunks to 32 bytes with the same domain
// separation as HashToScalar.
func HashBytes(tag string, chunks ...[]byte) []byte {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(hashPrefix))
	h.Write([]byte(tag))
	for _, c := range chunks {
		h.Write(c)
	}
	return h.Sum(nil)
}

// PubKeyToAddress derives the Ethereum-style address for a group public key:
// the last 20 bytes of the Keccak-256 hash of the uncompressed point, hex
// encoded with a 0x prefix. The address is stable across key rotations
// because resharing preserves the public key.
func PubKeyToAddress(p *Point) string {
	var a Point
	a.Set(p)
	a.ToAffine()
	uncompressed := secp256k1.NewPublicKey(&a.X, &a.Y).SerializeUncompressed()
	k := sha3.NewLegacyKeccak256()
	k.Write(uncompressed[1:])
	digest := k.Sum(nil)
	return "0x" + hex.EncodeToString(digest[12:])
}

// SortIndices returns a sorted copy of the participant index set, the
// canonical ordering used in every protocol transcript hash.
func SortIndices(indices []uint32) []uint32 {
	out := make([]uint32, len(indices))
	copy(out, indices)
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
