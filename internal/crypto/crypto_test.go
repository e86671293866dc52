package crypto

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New("a-test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	blob, err := c.Encrypt("sk-super-secret-key")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := c.Decrypt(blob)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "sk-super-secret-key" {
		t.Fatalf("got %q, want original plaintext", plaintext)
	}
}

func TestDecryptWrongKeyFails(t *testing.T) {
	c1, _ := New("secret-one")
	c2, _ := New("secret-two")

	blob, err := c1.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Decrypt(blob); err == nil {
		t.Fatal("expected decrypt with the wrong key to fail")
	}
}

func TestDecryptMalformedBlobFails(t *testing.T) {
	c, _ := New("secret")
	if _, err := c.Decrypt("not valid base64!!"); err == nil {
		t.Fatal("expected malformed blob to be rejected")
	}
}
