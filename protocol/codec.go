package protocol

import (
	"crypto/sha256"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // chain ids are defined over RIPEMD-160
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor enc mode: %v", err))
	}
	decMode, err = cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("protocol: cbor dec mode: %v", err))
	}
}

// Encode serializes v in the canonical wire form: deterministic CBOR with
// structs as arrays in field order.
func Encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Decode parses the canonical wire form into v.
func Decode(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// digest returns ripemd160(sha256(data)).
func digest(data []byte) [20]byte {
	sum := sha256.Sum256(data)
	h := ripemd160.New()
	h.Write(sum[:])
	var out [20]byte
	copy(out[:], h.Sum(nil))
	return out
}
