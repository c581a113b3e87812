package wallet

// Secret owns a buffer of key material. Wipe zeroes it; a wiped Secret
// reports no bytes.
type Secret struct {
	b     []byte
	wiped bool
}

// NewSecret takes ownership of b. The caller must not keep other
// references to it.
func NewSecret(b []byte) *Secret {
	return &Secret{b: b}
}

// Bytes returns the secret, or nil after Wipe.
func (s *Secret) Bytes() []byte {
	if s.wiped {
		return nil
	}
	return s.b
}

// Wipe zeroes the buffer. Safe to call more than once.
func (s *Secret) Wipe() {
	clear(s.b)
	s.wiped = true
}

// Wiped reports whether Wipe has run.
func (s *Secret) Wiped() bool {
	return s.wiped
}
