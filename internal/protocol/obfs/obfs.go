// Package obfs holds the reversible payload transform applied to every frame.
//
// None of this is cryptography. The transform only keeps payloads from being
// plain text on the wire; a deployment that needs confidentiality swaps an
// authenticated cipher in behind Transformer.
package obfs

// Transformer is a symmetric byte transform: Transform(Transform(p)) == p.
type Transformer interface {
	Transform(p []byte) []byte
}

// XOR is a repeating-key XOR. The key index restarts at zero for every payload.
type XOR struct {
	key []byte
}

// New returns the XOR transform for key, or Identity when key is empty.
func New(key string) Transformer {
	if key == "" {
		return Identity{}
	}
	return XOR{key: []byte(key)}
}

func (x XOR) Transform(p []byte) []byte {
	out := make([]byte, len(p))
	for i := range p {
		out[i] = p[i] ^ x.key[i%len(x.key)]
	}
	return out
}

// Identity passes payloads through unchanged.
type Identity struct{}

func (Identity) Transform(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
