// Package runestone encodes and decodes the runes protocol message carried by
// an OP_RETURN output, limited to the fields needed to move balances between
// outputs: edicts and the pointer to the output receiving unallocated runes.
package runestone

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/txscript"
)

const (
	tagBody    = 0
	tagPointer = 22

	// MagicNumber is the opcode following OP_RETURN in a runestone script.
	MagicNumber = txscript.OP_13

	maxPushSize = txscript.MaxScriptElementSize
)

var (
	// ErrNotRunestone is returned when decoding a script that is not a
	// runestone.
	ErrNotRunestone = errors.New("script is not a runestone")
	// ErrMalformed is returned for runestones that the protocol would treat
	// as cenotaphs, burning every input rune.
	ErrMalformed = errors.New("malformed runestone")
)

// RuneID identifies a rune by the block height and the index in the block of
// its etching transaction.
type RuneID struct {
	Block uint64
	Tx    uint32
}

// ParseRuneID parses an id in the form <block>:<tx>.
func ParseRuneID(s string) (RuneID, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return RuneID{}, fmt.Errorf("invalid rune id %q", s)
	}
	block, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return RuneID{}, fmt.Errorf("invalid rune id block %q", parts[0])
	}
	tx, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return RuneID{}, fmt.Errorf("invalid rune id tx %q", parts[1])
	}
	id := RuneID{block, uint32(tx)}
	if id.IsZero() {
		return RuneID{}, fmt.Errorf("invalid rune id %q", s)
	}
	return id, nil
}

func (id RuneID) IsZero() bool {
	return id.Block == 0 && id.Tx == 0
}

func (id RuneID) String() string {
	return fmt.Sprintf("%d:%d", id.Block, id.Tx)
}

func (id RuneID) less(other RuneID) bool {
	if id.Block != other.Block {
		return id.Block < other.Block
	}
	return id.Tx < other.Tx
}

// Edict moves Amount of the rune ID to the output at index Output. An amount
// of zero moves all the unallocated balance.
type Edict struct {
	ID     RuneID
	Amount uint64
	Output uint32
}

// Runestone is the protocol message of a transaction moving runes.
type Runestone struct {
	Edicts  []Edict
	Pointer *uint32
}

// Script returns the OP_RETURN output script carrying the runestone.
func (r Runestone) Script() ([]byte, error) {
	payload := make([]byte, 0)
	if r.Pointer != nil {
		payload = appendVarint(payload, tagPointer)
		payload = appendVarint(payload, uint64(*r.Pointer))
	}

	if len(r.Edicts) > 0 {
		edicts := append([]Edict{}, r.Edicts...)
		sort.SliceStable(edicts, func(i, j int) bool {
			return edicts[i].ID.less(edicts[j].ID)
		})

		payload = appendVarint(payload, tagBody)
		var prev RuneID
		for _, e := range edicts {
			block := e.ID.Block - prev.Block
			tx := uint64(e.ID.Tx)
			if block == 0 {
				tx -= uint64(prev.Tx)
			}
			payload = appendVarint(payload, block)
			payload = appendVarint(payload, tx)
			payload = appendVarint(payload, e.Amount)
			payload = appendVarint(payload, uint64(e.Output))
			prev = e.ID
		}
	}

	script := []byte{txscript.OP_RETURN, MagicNumber}
	for len(payload) > 0 {
		size := len(payload)
		if size > maxPushSize {
			size = maxPushSize
		}
		script = appendPush(script, payload[:size])
		payload = payload[size:]
	}
	return script, nil
}

// IsRunestone returns whether the script is a runestone output script.
func IsRunestone(script []byte) bool {
	return len(script) >= 2 &&
		script[0] == txscript.OP_RETURN && script[1] == MagicNumber
}

// Decode parses the runestone carried by the given output script. Only edicts
// and pointer are returned, other odd tags are skipped as the protocol does.
func Decode(script []byte) (*Runestone, error) {
	if !IsRunestone(script) {
		return nil, ErrNotRunestone
	}

	payload := make([]byte, 0)
	tokenizer := txscript.MakeScriptTokenizer(0, script[2:])
	for tokenizer.Next() {
		if tokenizer.Opcode() > txscript.OP_PUSHDATA4 {
			return nil, fmt.Errorf("%w: unexpected opcode %d", ErrMalformed, tokenizer.Opcode())
		}
		payload = append(payload, tokenizer.Data()...)
	}
	if err := tokenizer.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	integers := make([]uint64, 0)
	for len(payload) > 0 {
		n, size, err := readVarint(payload)
		if err != nil {
			return nil, err
		}
		integers = append(integers, n)
		payload = payload[size:]
	}

	r := &Runestone{}
	for i := 0; i < len(integers); i += 2 {
		tag := integers[i]
		if tag == tagBody {
			edicts, err := decodeEdicts(integers[i+1:])
			if err != nil {
				return nil, err
			}
			r.Edicts = edicts
			break
		}
		if i+1 >= len(integers) {
			return nil, fmt.Errorf("%w: truncated field", ErrMalformed)
		}
		value := integers[i+1]
		switch {
		case tag == tagPointer:
			if value > uint64(^uint32(0)) {
				return nil, fmt.Errorf("%w: invalid pointer", ErrMalformed)
			}
			pointer := uint32(value)
			r.Pointer = &pointer
		case tag%2 == 0:
			return nil, fmt.Errorf("%w: unrecognized even tag %d", ErrMalformed, tag)
		}
	}
	return r, nil
}

func decodeEdicts(integers []uint64) ([]Edict, error) {
	if len(integers)%4 != 0 {
		return nil, fmt.Errorf("%w: trailing integers in body", ErrMalformed)
	}
	edicts := make([]Edict, 0, len(integers)/4)
	var prev RuneID
	for i := 0; i < len(integers); i += 4 {
		block, tx := integers[i], integers[i+1]
		id := RuneID{Block: prev.Block + block}
		if block == 0 {
			tx += uint64(prev.Tx)
		}
		if tx > uint64(^uint32(0)) || integers[i+3] > uint64(^uint32(0)) {
			return nil, fmt.Errorf("%w: edict out of range", ErrMalformed)
		}
		id.Tx = uint32(tx)
		edicts = append(edicts, Edict{
			ID:     id,
			Amount: integers[i+2],
			Output: uint32(integers[i+3]),
		})
		prev = id
	}
	return edicts, nil
}

// appendVarint appends n encoded as LEB128.
func appendVarint(buf []byte, n uint64) []byte {
	for n >= 0x80 {
		buf = append(buf, byte(n)|0x80)
		n >>= 7
	}
	return append(buf, byte(n))
}

func readVarint(buf []byte) (uint64, int, error) {
	var n uint64
	for i, b := range buf {
		if i >= 10 || (i == 9 && b > 1) {
			return 0, 0, fmt.Errorf("%w: varint overflow", ErrMalformed)
		}
		n |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return n, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: truncated varint", ErrMalformed)
}

// appendPush appends a data push that is never turned into a small integer
// opcode, unlike txscript.ScriptBuilder does for single byte data.
func appendPush(script, data []byte) []byte {
	size := len(data)
	switch {
	case size <= txscript.OP_DATA_75:
		script = append(script, byte(size))
	case size <= 0xff:
		script = append(script, txscript.OP_PUSHDATA1, byte(size))
	default:
		script = append(script, txscript.OP_PUSHDATA2, byte(size), byte(size>>8))
	}
	return append(script, data...)
}
