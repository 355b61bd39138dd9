// Package crypto implements the client-side cryptographic primitives of the
// vault: key derivation, AEAD encrypt/decrypt, random generation, and
// constant-time comparison. Nothing in this package ever touches disk or
// the network; it operates purely on byte slices and the tagged unions
// defined here and in internal/envelope.
package crypto

import (
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"crypto/sha256"

	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

// KDF parameter bounds, per spec.md section 4.1.
const (
	PBKDF2MinIterations = 600_000
	PBKDF2MaxIterations = 2_000_000

	// LegacyPBKDF2Iterations is the historical iteration count used by one
	// compatibility helper in the original product. Envelopes produced with
	// it MUST be accepted on import but this build never emits them.
	LegacyPBKDF2Iterations = 100_000

	Argon2MinIterations = 2
	Argon2MaxIterations = 10
	Argon2MinMemoryKiB  = 15 * 1024
	Argon2MaxMemoryKiB  = 1024 * 1024
	Argon2MinParallel   = 1
	Argon2MaxParallel   = 16

	// DefaultPBKDF2Iterations is used by CreateAccount when the caller does
	// not request a specific KDF.
	DefaultPBKDF2Iterations = 600_000

	KeySize32 = 32
	KeySize64 = 64

	// HashPassphraseIterations is fixed regardless of the KDF configured for
	// DeriveKey: hash_passphrase is always PBKDF2-HMAC-SHA-256 at 600k.
	HashPassphraseIterations = 600_000
)

// KDFKind tags which KDF family a KDFParams value describes.
type KDFKind string

const (
	KDFPBKDF2   KDFKind = "pbkdf2-sha256"
	KDFArgon2id KDFKind = "argon2id"
)

// KDFParams is the tagged union of supported KDF parameter sets. Exactly one
// of PBKDF2/Argon2id is populated, selected by Kind.
type KDFParams struct {
	Kind    KDFKind
	PBKDF2  PBKDF2Params
	Argon2  Argon2idParams
	legacy  bool // true only for imported envelopes using the 100k path
}

// PBKDF2Params configures PBKDF2-HMAC-SHA-256.
type PBKDF2Params struct {
	Iterations int
}

// Argon2idParams configures Argon2id.
type Argon2idParams struct {
	Iterations  int
	MemoryKiB   int
	Parallelism int
}

// DefaultKDFParams returns PBKDF2-HMAC-SHA-256 at 600,000 iterations, the
// default KDF per spec.md section 4.1.
func DefaultKDFParams() KDFParams {
	return KDFParams{Kind: KDFPBKDF2, PBKDF2: PBKDF2Params{Iterations: DefaultPBKDF2Iterations}}
}

// NewPBKDF2Params validates and constructs a PBKDF2 parameter set. Rejection
// happens here, at construction, not at first use.
func NewPBKDF2Params(iterations int) (KDFParams, error) {
	if iterations < PBKDF2MinIterations || iterations > PBKDF2MaxIterations {
		return KDFParams{}, fmt.Errorf("%w: pbkdf2 iterations %d outside [%d,%d]",
			vaulterr.ErrKdfOutOfRange, iterations, PBKDF2MinIterations, PBKDF2MaxIterations)
	}
	return KDFParams{Kind: KDFPBKDF2, PBKDF2: PBKDF2Params{Iterations: iterations}}, nil
}

// NewLegacyPBKDF2Params constructs the 100k-iteration parameter set accepted
// for read-only import of legacy envelopes (spec.md section 9, open
// question 3). It deliberately bypasses the normal bound check and is never
// reachable from any encryption path.
func NewLegacyPBKDF2Params() KDFParams {
	return KDFParams{Kind: KDFPBKDF2, PBKDF2: PBKDF2Params{Iterations: LegacyPBKDF2Iterations}, legacy: true}
}

// NewArgon2idParams validates and constructs an Argon2id parameter set.
func NewArgon2idParams(iterations, memoryKiB, parallelism int) (KDFParams, error) {
	if iterations < Argon2MinIterations || iterations > Argon2MaxIterations {
		return KDFParams{}, fmt.Errorf("%w: argon2id iterations %d outside [%d,%d]",
			vaulterr.ErrKdfOutOfRange, iterations, Argon2MinIterations, Argon2MaxIterations)
	}
	if memoryKiB < Argon2MinMemoryKiB || memoryKiB > Argon2MaxMemoryKiB {
		return KDFParams{}, fmt.Errorf("%w: argon2id memory %dKiB outside [%d,%d]",
			vaulterr.ErrKdfOutOfRange, memoryKiB, Argon2MinMemoryKiB, Argon2MaxMemoryKiB)
	}
	if parallelism < Argon2MinParallel || parallelism > Argon2MaxParallel {
		return KDFParams{}, fmt.Errorf("%w: argon2id parallelism %d outside [%d,%d]",
			vaulterr.ErrKdfOutOfRange, parallelism, Argon2MinParallel, Argon2MaxParallel)
	}
	return KDFParams{Kind: KDFArgon2id, Argon2: Argon2idParams{
		Iterations:  iterations,
		MemoryKiB:   memoryKiB,
		Parallelism: parallelism,
	}}, nil
}

// DeriveKey derives a 32-byte master key from passphrase and salt using the
// KDF family described by params. Argon2id is accepted at construction
// (NewArgon2idParams validates bounds) but refused here until a future
// build wires it end-to-end — see DESIGN.md's decision on spec.md's open
// question about the second KDF.
func DeriveKey(passphrase string, salt []byte, params KDFParams) ([]byte, error) {
	switch params.Kind {
	case KDFPBKDF2:
		return pbkdf2.Key([]byte(passphrase), salt, params.PBKDF2.Iterations, KeySize32, sha256.New), nil
	case KDFArgon2id:
		return nil, fmt.Errorf("%w: argon2id key derivation is not implemented", vaulterr.ErrUnsupportedScheme)
	default:
		return nil, fmt.Errorf("%w: unknown kdf kind %q", vaulterr.ErrUnsupportedScheme, params.Kind)
	}
}

// hashPassphraseSalt is mixed into hash_passphrase so that, for the same
// (passphrase, salt) pair, DeriveKey and HashPassphrase never produce equal
// output even when their iteration counts coincide.
var hashPassphraseInfo = []byte("keybox|auth-hash|v1")

// HashPassphrase computes the independent authentication hash used to
// verify a passphrase at unlock without recovering the master key. It is
// always PBKDF2-HMAC-SHA-256 at 600,000 iterations, regardless of the KDF
// configured for DeriveKey, and is re-hashed through SHA-256 with a fixed
// domain-separation tag so it can never collide with a DeriveKey output.
func HashPassphrase(passphrase string, salt []byte) []byte {
	derived := pbkdf2.Key([]byte(passphrase), salt, HashPassphraseIterations, KeySize32, sha256.New)
	h := sha256.New()
	h.Write(derived)
	h.Write(hashPassphraseInfo)
	return h.Sum(nil)
}

// argon2idKey is kept for completeness and for tests of bound validation;
// it is not reachable from DeriveKey yet.
func argon2idKey(passphrase string, salt []byte, p Argon2idParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, uint32(p.Iterations), uint32(p.MemoryKiB), uint8(p.Parallelism), KeySize32)
}
