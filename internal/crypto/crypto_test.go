package crypto

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testMaster() []byte {
	return []byte(strings.Repeat("m", MinMasterKeySize))
}

func TestDeriveKey(t *testing.T) {
	master := testMaster()

	t.Run("deterministic per scope", func(t *testing.T) {
		assert.Equal(t, DeriveKey(master, "42"), DeriveKey(master, "42"))
	})

	t.Run("distinct scopes get distinct keys", func(t *testing.T) {
		assert.NotEqual(t, DeriveKey(master, "42"), DeriveKey(master, "43"))
	})

	t.Run("distinct masters get distinct keys", func(t *testing.T) {
		other := []byte(strings.Repeat("n", MinMasterKeySize))
		assert.NotEqual(t, DeriveKey(master, "42"), DeriveKey(other, "42"))
	})

	t.Run("key size", func(t *testing.T) {
		assert.Len(t, DeriveKey(master, "42"), KeySize)
	})
}

func TestSealOpen(t *testing.T) {
	key := DeriveKey(testMaster(), "1")

	t.Run("round trip", func(t *testing.T) {
		blob, err := Seal(key, []byte(`{"access_token":"abc"}`))
		require.NoError(t, err)

		plaintext, err := Open(key, blob)
		require.NoError(t, err)
		assert.Equal(t, `{"access_token":"abc"}`, string(plaintext))
	})

	t.Run("empty payload", func(t *testing.T) {
		blob, err := Seal(key, nil)
		require.NoError(t, err)

		plaintext, err := Open(key, blob)
		require.NoError(t, err)
		assert.Empty(t, plaintext)
	})

	t.Run("same plaintext yields different ciphertext", func(t *testing.T) {
		a, err := Seal(key, []byte("same"))
		require.NoError(t, err)
		b, err := Seal(key, []byte("same"))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("wrong key fails", func(t *testing.T) {
		blob, err := Seal(key, []byte("secret"))
		require.NoError(t, err)

		_, err = Open(DeriveKey(testMaster(), "2"), blob)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("tampered blob fails", func(t *testing.T) {
		blob, err := Seal(key, []byte("secret"))
		require.NoError(t, err)
		blob[len(blob)-1] ^= 0xFF

		_, err = Open(key, blob)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("short blob", func(t *testing.T) {
		_, err := Open(key, []byte("short"))
		assert.ErrorIs(t, err, ErrCiphertextTooShort)
	})

	t.Run("invalid key size", func(t *testing.T) {
		_, err := Seal(make([]byte, 16), []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidKeySize)
	})
}

func TestSealOpen_RoundTripProperty(t *testing.T) {
	ownKey := DeriveKey(testMaster(), "owner-a")
	otherKey := DeriveKey(testMaster(), "owner-b")

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOf(rapid.Byte()).Draw(t, "payload")

		blob, err := Seal(ownKey, payload)
		if err != nil {
			t.Fatalf("seal: %v", err)
		}

		got, err := Open(ownKey, blob)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if string(got) != string(payload) {
			t.Fatalf("round trip mismatch: %x != %x", got, payload)
		}

		if _, err := Open(otherKey, blob); err != ErrDecryptionFailed {
			t.Fatalf("expected decryption failure with foreign key, got %v", err)
		}
	})
}

func TestSecretBox(t *testing.T) {
	t.Run("rejects short master", func(t *testing.T) {
		box, err := NewSecretBox([]byte("short"))
		assert.ErrorIs(t, err, ErrMasterKeyTooShort)
		assert.Nil(t, box)
	})

	t.Run("round trip per scope", func(t *testing.T) {
		box, err := NewSecretBox(testMaster())
		require.NoError(t, err)

		sealed, err := box.SealFor("7", []byte("payload"))
		require.NoError(t, err)
		assert.NotContains(t, sealed, "payload")

		opened, err := box.OpenFor("7", sealed)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(opened))
	})

	t.Run("other scope cannot open", func(t *testing.T) {
		box, err := NewSecretBox(testMaster())
		require.NoError(t, err)

		sealed, err := box.SealFor("7", []byte("payload"))
		require.NoError(t, err)

		_, err = box.OpenFor("8", sealed)
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("invalid encoding is a decryption failure", func(t *testing.T) {
		box, err := NewSecretBox(testMaster())
		require.NoError(t, err)

		_, err = box.OpenFor("7", "not-valid-base64!!!")
		assert.ErrorIs(t, err, ErrDecryptionFailed)
	})

	t.Run("master is copied", func(t *testing.T) {
		master := testMaster()
		box, err := NewSecretBox(master)
		require.NoError(t, err)

		sealed, err := box.SealFor("7", []byte("payload"))
		require.NoError(t, err)
		master[0] = 'x'

		_, err = box.OpenFor("7", sealed)
		assert.NoError(t, err)
	})
}

func TestParseMasterKey(t *testing.T) {
	t.Run("base64 value", func(t *testing.T) {
		raw := make([]byte, 32)
		raw[0] = 1
		key, err := ParseMasterKey(base64.StdEncoding.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, raw, key)
	})

	t.Run("raw string value", func(t *testing.T) {
		value := "a-long-enough-master-secret-value-123"
		key, err := ParseMasterKey(value)
		require.NoError(t, err)
		assert.Equal(t, []byte(value), key)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := ParseMasterKey("tiny")
		assert.ErrorIs(t, err, ErrMasterKeyTooShort)
	})
}

func TestGenerateKey(t *testing.T) {
	key1, err := GenerateKey()
	require.NoError(t, err)
	key2, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)

	parsed, err := ParseMasterKey(key1)
	require.NoError(t, err)
	assert.Len(t, parsed, KeySize)
}
