package state

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestParseKey(t *testing.T) {
	t.Run("accepts 64 hex characters", func(t *testing.T) {
		key, err := ParseKey("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
		if err != nil {
			t.Fatalf("ParseKey failed: %v", err)
		}
		if len(key) != KeySize {
			t.Errorf("expected %d bytes, got %d", KeySize, len(key))
		}
	})

	t.Run("rejects wrong lengths and non-hex", func(t *testing.T) {
		bad := []string{
			"",
			"abcd",
			"00112233445566778899aabbccddeeff",                                   // 32 chars
			"zz112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",   // non-hex
			"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff00", // 66 chars
		}
		for _, input := range bad {
			if _, err := ParseKey(input); err == nil {
				t.Errorf("expected ParseKey(%q) to fail", input)
			}
		}
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := testKey(t)
	payloads := [][]byte{
		[]byte(`{"cookies":[],"origins":[]}`),
		[]byte(""),
		[]byte("x"),
		bytes.Repeat([]byte("state"), 10000),
	}

	for _, plaintext := range payloads {
		env, err := Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		got, err := Decrypt(env, key)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round-trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
		}
	}
}

func TestDecryptFailsClosed(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte(`{"cookies":[{"name":"session_token"}]}`), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	t.Run("different key", func(t *testing.T) {
		other := testKey(t)
		if _, err := Decrypt(env, other); err != ErrAuthentication {
			t.Errorf("expected ErrAuthentication, got %v", err)
		}
	})

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		tampered := *env
		tampered.Ciphertext = append([]byte(nil), env.Ciphertext...)
		tampered.Ciphertext[0] ^= 0x01
		if _, err := Decrypt(&tampered, key); err != ErrAuthentication {
			t.Errorf("expected ErrAuthentication, got %v", err)
		}
	})

	t.Run("flipped tag bit", func(t *testing.T) {
		tampered := *env
		tampered.Tag = append([]byte(nil), env.Tag...)
		tampered.Tag[len(tampered.Tag)-1] ^= 0x80
		if _, err := Decrypt(&tampered, key); err != ErrAuthentication {
			t.Errorf("expected ErrAuthentication, got %v", err)
		}
	})
}

func TestEnvelopeShape(t *testing.T) {
	key := testKey(t)
	env, err := Encrypt([]byte("payload"), key)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	for _, field := range []string{"iv", "tag", "ciphertext", "version"} {
		if _, ok := fields[field]; !ok {
			t.Errorf("envelope missing %q field", field)
		}
	}

	if !IsEncrypted(data) {
		t.Error("serialized envelope not detected as encrypted")
	}
}

func TestIsEncrypted(t *testing.T) {
	plaintexts := [][]byte{
		[]byte(`{"cookies":[],"origins":[]}`),
		[]byte(`not json at all`),
		// Field-name collision without the version discriminator must not
		// be misread as an envelope.
		[]byte(`{"iv":"YWJj","tag":"YWJj","ciphertext":"YWJj"}`),
		[]byte(`{}`),
	}
	for _, data := range plaintexts {
		if IsEncrypted(data) {
			t.Errorf("plaintext %s misdetected as encrypted", data)
		}
	}
}

func TestNonceUniqueness(t *testing.T) {
	key := testKey(t)
	a, err := Encrypt([]byte("same input"), key)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encrypt([]byte("same input"), key)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a.IV, b.IV) {
		t.Error("two encryptions reused a nonce")
	}
}
