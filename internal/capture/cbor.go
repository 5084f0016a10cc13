// Package capture records raw sACN datagrams to a CBOR stream and replays
// them through the receiver's Transport interface.
package capture

import (
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Record is one datagram as read from the socket on Port.
type Record struct {
	Timestamp time.Time `cbor:"1,keyasint"`
	Port      int       `cbor:"2,keyasint"`
	Source    string    `cbor:"3,keyasint,omitempty"`
	Data      []byte    `cbor:"4,keyasint"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encoder mode: %v", err))
	}
	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyQuiet,
		IndefLength: cbor.IndefLengthAllowed,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor decoder mode: %v", err))
	}
}

func NewEncoder(w io.Writer) *cbor.Encoder { return encMode.NewEncoder(w) }

func NewDecoder(r io.Reader) *cbor.Decoder { return decMode.NewDecoder(r) }
