package dist

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("quill.dist")

// cborEncMode uses canonical mode so equal scripts encode, and therefore
// hash, identically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("dist: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// HashScript returns the SHA-256 of the canonical encoding of w.
func HashScript(w *ScriptWire) ([32]byte, error) {
	data, err := cborEncMode.Marshal(w)
	if err != nil {
		return [32]byte{}, fmt.Errorf("dist: encode script: %w", err)
	}
	return sha256.Sum256(data), nil
}

// MarshalBundle serializes a Bundle to CBOR bytes.
func MarshalBundle(b *Bundle) ([]byte, error) {
	return cborEncMode.Marshal(b)
}

// UnmarshalBundle deserializes a Bundle from CBOR bytes. The hash is not
// checked; call Verify or Load.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("dist: unmarshal bundle: %w", err)
	}
	return &b, nil
}

// WriteFile encodes b to path.
func WriteFile(path string, b *Bundle) error {
	data, err := MarshalBundle(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile decodes the bundle at path.
func ReadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalBundle(data)
}
