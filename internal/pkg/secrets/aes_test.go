package secrets

import (
	"bytes"
	"errors"
	"testing"
)

func testEncryptor(t *testing.T) *AESGCMEncryptor {
	t.Helper()

	key := make([]byte, aesKeyLen)
	copy(key, []byte("0123456789abcdef0123456789abcdef"))
	return NewAESGCMEncryptor(StaticKeyProvider{KeyBytes: key})
}

func TestAESGCMEncryptor(t *testing.T) {
	scope := Scope{CredentialID: 42, Purpose: PurposeCredentialSecret}

	t.Run("round trip", func(t *testing.T) {
		enc := testEncryptor(t)

		ciphertext, err := enc.Encrypt([]byte("hunter2"), scope)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		if bytes.Contains(ciphertext, []byte("hunter2")) {
			t.Fatal("ciphertext contains the plaintext")
		}

		plain, err := enc.Decrypt(ciphertext, scope)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if string(plain) != "hunter2" {
			t.Fatalf("plaintext = %q, want %q", plain, "hunter2")
		}
	})

	t.Run("ciphertext is bound to the credential", func(t *testing.T) {
		enc := testEncryptor(t)

		ciphertext, err := enc.Encrypt([]byte("hunter2"), scope)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}

		_, err = enc.Decrypt(ciphertext, Scope{CredentialID: 43, Purpose: PurposeCredentialSecret})
		if !errors.Is(err, ErrDecryptFailed) {
			t.Fatalf("cross-credential decrypt: %v, want ErrDecryptFailed", err)
		}
	})

	t.Run("ciphertext is bound to the purpose", func(t *testing.T) {
		enc := testEncryptor(t)

		ciphertext, err := enc.Encrypt([]byte("hunter2"), scope)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}

		_, err = enc.Decrypt(ciphertext, Scope{CredentialID: 42, Purpose: PurposeCredentialNote})
		if !errors.Is(err, ErrDecryptFailed) {
			t.Fatalf("cross-purpose decrypt: %v, want ErrDecryptFailed", err)
		}
	})

	t.Run("tampered ciphertext fails", func(t *testing.T) {
		enc := testEncryptor(t)

		ciphertext, err := enc.Encrypt([]byte("hunter2"), scope)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		ciphertext[len(ciphertext)-1] ^= 0x01

		if _, err := enc.Decrypt(ciphertext, scope); !errors.Is(err, ErrDecryptFailed) {
			t.Fatalf("tampered decrypt: %v, want ErrDecryptFailed", err)
		}
	})

	t.Run("truncated ciphertext fails", func(t *testing.T) {
		enc := testEncryptor(t)

		if _, err := enc.Decrypt([]byte{0, 1, 2}, scope); !errors.Is(err, ErrCiphertextTooShort) {
			t.Fatalf("truncated decrypt: %v, want ErrCiphertextTooShort", err)
		}
	})

	t.Run("unknown version fails", func(t *testing.T) {
		enc := testEncryptor(t)

		ciphertext, err := enc.Encrypt([]byte("hunter2"), scope)
		if err != nil {
			t.Fatalf("Encrypt: %v", err)
		}
		ciphertext[0] = 0xFF

		if _, err := enc.Decrypt(ciphertext, scope); !errors.Is(err, ErrUnsupportedCiphertextVersion) {
			t.Fatalf("versioned decrypt: %v, want ErrUnsupportedCiphertextVersion", err)
		}
	})

	t.Run("empty plaintext is rejected", func(t *testing.T) {
		enc := testEncryptor(t)

		if _, err := enc.Encrypt(nil, scope); !errors.Is(err, ErrPlaintextEmpty) {
			t.Fatalf("empty encrypt: %v, want ErrPlaintextEmpty", err)
		}
	})

	t.Run("missing static key surfaces", func(t *testing.T) {
		enc := NewAESGCMEncryptor(StaticKeyProvider{})

		if _, err := enc.Encrypt([]byte("x"), scope); !errors.Is(err, ErrMissingStaticKey) {
			t.Fatalf("missing key encrypt: %v, want ErrMissingStaticKey", err)
		}
	})
}

func TestDerivedKeyProvider(t *testing.T) {
	salt := []byte("0123456789abcdef")

	t.Run("derivation is deterministic and aes sized", func(t *testing.T) {
		a, err := NewDerivedKeyProvider("passphrase", salt)
		if err != nil {
			t.Fatalf("NewDerivedKeyProvider: %v", err)
		}
		b, err := NewDerivedKeyProvider("passphrase", salt)
		if err != nil {
			t.Fatalf("NewDerivedKeyProvider: %v", err)
		}

		ka, _ := a.Key(Scope{})
		kb, _ := b.Key(Scope{})
		if len(ka) != aesKeyLen {
			t.Fatalf("key length = %d, want %d", len(ka), aesKeyLen)
		}
		if !bytes.Equal(ka, kb) {
			t.Fatal("same passphrase and salt derived different keys")
		}
	})

	t.Run("different salts derive different keys", func(t *testing.T) {
		a, err := NewDerivedKeyProvider("passphrase", salt)
		if err != nil {
			t.Fatalf("NewDerivedKeyProvider: %v", err)
		}
		b, err := NewDerivedKeyProvider("passphrase", []byte("fedcba9876543210"))
		if err != nil {
			t.Fatalf("NewDerivedKeyProvider: %v", err)
		}

		ka, _ := a.Key(Scope{})
		kb, _ := b.Key(Scope{})
		if bytes.Equal(ka, kb) {
			t.Fatal("different salts derived the same key")
		}
	})

	t.Run("empty passphrase is rejected", func(t *testing.T) {
		if _, err := NewDerivedKeyProvider("", salt); !errors.Is(err, ErrMissingPassphrase) {
			t.Fatalf("empty passphrase: %v, want ErrMissingPassphrase", err)
		}
		if _, err := NewDerivedKeyProvider("passphrase", nil); !errors.Is(err, ErrMissingPassphrase) {
			t.Fatalf("empty salt: %v, want ErrMissingPassphrase", err)
		}
	})
}
