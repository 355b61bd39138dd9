package crypto

import (
	"bytes"
	"errors"
	"testing"

	"github.com/leon6002/keybox-sub000/internal/vaulterr"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := []byte("S3cret!")
	key32, err := RandomKey()
	if err != nil {
		t.Fatalf("RandomKey: %v", err)
	}
	key64 := append(append([]byte{}, key32...), key32...)

	cases := []struct {
		scheme Scheme
		key    []byte
	}{
		{SchemeAESGCM256, key32},
		{SchemeXChaCha20Poly1305, key32},
		{SchemeAESCBC256HMACSHA256, key64},
	}

	for _, tc := range cases {
		t.Run(string(tc.scheme), func(t *testing.T) {
			env, err := Encrypt(plaintext, tc.key, tc.scheme)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			got, err := Decrypt(env, tc.key)
			if err != nil {
				t.Fatalf("Decrypt: %v", err)
			}
			if !bytes.Equal(got, plaintext) {
				t.Fatalf("round trip mismatch: got %q want %q", got, plaintext)
			}
		})
	}
}

func TestEncryptEmptyAndLargePlaintext(t *testing.T) {
	key, _ := RandomKey()

	env, err := Encrypt(nil, key, SchemeXChaCha20Poly1305)
	if err != nil {
		t.Fatalf("encrypt empty: %v", err)
	}
	pt, err := Decrypt(env, key)
	if err != nil || len(pt) != 0 {
		t.Fatalf("decrypt empty: pt=%v err=%v", pt, err)
	}

	large := bytes.Repeat([]byte("a"), 10*1024*1024)
	env, err = Encrypt(large, key, SchemeXChaCha20Poly1305)
	if err != nil {
		t.Fatalf("encrypt 10MiB: %v", err)
	}
	pt, err = Decrypt(env, key)
	if err != nil || !bytes.Equal(pt, large) {
		t.Fatalf("decrypt 10MiB round trip failed")
	}
}

func TestCBCHMACRequires64ByteKey(t *testing.T) {
	key32, _ := RandomKey()
	_, err := Encrypt([]byte("x"), key32, SchemeAESCBC256HMACSHA256)
	if !errors.Is(err, vaulterr.ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
}

func TestCBCHMACBitFlipMacMismatch(t *testing.T) {
	key32, _ := RandomKey()
	key64 := append(append([]byte{}, key32...), key32...)
	env, err := Encrypt([]byte("flip me"), key64, SchemeAESCBC256HMACSHA256)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	env.CT[0] ^= 0x01
	_, err = Decrypt(env, key64)
	if !errors.Is(err, vaulterr.ErrMacMismatch) {
		t.Fatalf("expected ErrMacMismatch, got %v", err)
	}
}

func TestDecryptNeverCrossesSchemes(t *testing.T) {
	key, _ := RandomKey()
	env, err := Encrypt([]byte("hello"), key, SchemeAESGCM256)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	env.Scheme = SchemeXChaCha20Poly1305
	if _, err := Decrypt(env, key); err == nil {
		t.Fatalf("expected decrypt under the wrong scheme to fail")
	}
}

func TestKdfParamBounds(t *testing.T) {
	if _, err := NewPBKDF2Params(PBKDF2MinIterations); err != nil {
		t.Fatalf("min iterations should be accepted: %v", err)
	}
	if _, err := NewPBKDF2Params(PBKDF2MaxIterations); err != nil {
		t.Fatalf("max iterations should be accepted: %v", err)
	}
	if _, err := NewPBKDF2Params(PBKDF2MinIterations - 1); !errors.Is(err, vaulterr.ErrKdfOutOfRange) {
		t.Fatalf("below-min iterations should be rejected, got %v", err)
	}
	if _, err := NewPBKDF2Params(PBKDF2MaxIterations + 1); !errors.Is(err, vaulterr.ErrKdfOutOfRange) {
		t.Fatalf("above-max iterations should be rejected, got %v", err)
	}

	if _, err := NewArgon2idParams(Argon2MinIterations, Argon2MinMemoryKiB, Argon2MinParallel); err != nil {
		t.Fatalf("min argon2id bounds should be accepted: %v", err)
	}
	if _, err := NewArgon2idParams(Argon2MaxIterations, Argon2MaxMemoryKiB, Argon2MaxParallel); err != nil {
		t.Fatalf("max argon2id bounds should be accepted: %v", err)
	}
	if _, err := NewArgon2idParams(Argon2MinIterations-1, Argon2MinMemoryKiB, Argon2MinParallel); !errors.Is(err, vaulterr.ErrKdfOutOfRange) {
		t.Fatalf("below-min argon2id iterations should be rejected")
	}
	if _, err := NewArgon2idParams(Argon2MaxIterations+1, Argon2MinMemoryKiB, Argon2MinParallel); !errors.Is(err, vaulterr.ErrKdfOutOfRange) {
		t.Fatalf("above-max argon2id iterations should be rejected")
	}
}

func TestArgon2idRefusedAtEncryptTime(t *testing.T) {
	params, err := NewArgon2idParams(Argon2MinIterations, Argon2MinMemoryKiB, Argon2MinParallel)
	if err != nil {
		t.Fatalf("NewArgon2idParams: %v", err)
	}
	_, err = DeriveKey("passphrase", []byte("0123456789abcdef"), params)
	if !errors.Is(err, vaulterr.ErrUnsupportedScheme) {
		t.Fatalf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestHashPassphraseDistinctFromDeriveKey(t *testing.T) {
	salt := []byte("0123456789abcdef")
	params := DefaultKDFParams()

	derived, err := DeriveKey("Corr3ct!HorseBattery#2024", salt, params)
	if err != nil {
		t.Fatalf("DeriveKey: %v", err)
	}
	hash := HashPassphrase("Corr3ct!HorseBattery#2024", salt)

	if bytes.Equal(derived, hash) {
		t.Fatalf("hash_passphrase output must differ from derive_key output")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte("abcdef")
	b := []byte("abcdef")
	c := []byte("abcdeg")
	if !ConstantTimeEqual(a, b) {
		t.Fatalf("equal slices should compare equal")
	}
	if ConstantTimeEqual(a, c) {
		t.Fatalf("differing slices should compare unequal")
	}
	if ConstantTimeEqual(a, []byte("short")) {
		t.Fatalf("different-length slices should compare unequal")
	}
}

func TestZeroize(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	Zeroize(buf)
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("buffer not zeroed: %v", buf)
		}
	}
}
