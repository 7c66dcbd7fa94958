package hash

// Hash hashes a plaintext value and verifies a plaintext against a hash.
type Hash interface {
	// Hash returns the hashed representation of str.
	Hash(str string) ([]byte, error)
	// Verify reports whether str matches the stored hash.
	Verify(hashed, str string) bool
}
