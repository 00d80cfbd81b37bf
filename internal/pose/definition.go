package pose

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// MaxBlobBytes bounds an inline definition blob accepted off the wire.
const MaxBlobBytes = 256 * 1024

var ErrBlobTooLarge = errors.New("pose: inline definition blob too large")

// Keyframe is one sampled bone transform inside a definition.
type Keyframe struct {
	Tick     uint32     `cbor:"1,keyasint" toml:"tick"`
	Bone     string     `cbor:"2,keyasint" toml:"bone"`
	Rotation [3]float64 `cbor:"3,keyasint" toml:"rotation"`
	Position [3]float64 `cbor:"4,keyasint,omitempty" toml:"position"`
	Easing   string     `cbor:"5,keyasint,omitempty" toml:"easing"`
}

// Definition is an authored keyframed pose. It is immutable once observed;
// callers share pointers and never mutate them.
type Definition struct {
	ID        Identifier `cbor:"1,keyasint,omitempty"`
	Name      string     `cbor:"2,keyasint,omitempty"`
	Length    uint32     `cbor:"3,keyasint"`
	Loop      bool       `cbor:"4,keyasint"`
	Keyframes []Keyframe `cbor:"5,keyasint,omitempty"`
}

var (
	blobEncMode cbor.EncMode
	blobDecMode cbor.DecMode
)

func init() {
	var err error
	blobEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	blobDecMode, err = cbor.DecOptions{
		MaxArrayElements: 65536,
		MaxMapPairs:      65536,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeBlob serializes def into the inline wire blob.
func EncodeBlob(def *Definition) ([]byte, error) {
	if def == nil {
		return nil, nil
	}
	b, err := blobEncMode.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("pose: encode blob: %w", err)
	}
	if len(b) > MaxBlobBytes {
		return nil, ErrBlobTooLarge
	}
	return b, nil
}

// DecodeBlob parses an inline wire blob. An empty blob yields (nil, nil).
func DecodeBlob(b []byte) (*Definition, error) {
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) > MaxBlobBytes {
		return nil, ErrBlobTooLarge
	}
	var def Definition
	if err := blobDecMode.Unmarshal(b, &def); err != nil {
		return nil, fmt.Errorf("pose: decode blob: %w", err)
	}
	return &def, nil
}
