package hash

import "testing"

func TestHMACSHA256(t *testing.T) {
	h := NewHMACSHA256("test-secret")

	t.Run("hash is deterministic per secret", func(t *testing.T) {
		a, err := h.Hash("123456")
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		b, err := h.Hash("123456")
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		if string(a) != string(b) {
			t.Fatal("same input hashed differently")
		}

		other, err := NewHMACSHA256("other-secret").Hash("123456")
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}
		if string(a) == string(other) {
			t.Fatal("different secrets produced the same hash")
		}
	})

	t.Run("verify matches only the original input", func(t *testing.T) {
		sum, err := h.Hash("123456")
		if err != nil {
			t.Fatalf("Hash: %v", err)
		}

		if !h.Verify(string(sum), "123456") {
			t.Fatal("verify rejected the original input")
		}
		if h.Verify(string(sum), "654321") {
			t.Fatal("verify accepted a different input")
		}
	})
}
