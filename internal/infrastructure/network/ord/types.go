package ord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tdex-network/unitswap/pkg/runestone"
)

type output struct {
	Value        uint64          `json:"value"`
	Indexed      *bool           `json:"indexed"`
	Spent        bool            `json:"spent"`
	Inscriptions []string        `json:"inscriptions"`
	Runes        json.RawMessage `json:"runes"`
}

type inscription struct {
	SatPoint string `json:"satpoint"`
}

// parse splits the satpoint, in the form <txid>:<vout>:<offset>.
func (i *inscription) parse(id string) (*Inscription, error) {
	parts := strings.Split(i.SatPoint, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid satpoint %q for inscription %s", i.SatPoint, id)
	}
	vout, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid satpoint %q for inscription %s", i.SatPoint, id)
	}
	offset, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid satpoint %q for inscription %s", i.SatPoint, id)
	}
	return &Inscription{
		ID:     id,
		TxID:   parts[0],
		VOut:   uint32(vout),
		Offset: offset,
	}, nil
}

type runeEntry struct {
	ID    string `json:"id"`
	Entry struct {
		SpacedRune   string `json:"spaced_rune"`
		Divisibility int    `json:"divisibility"`
	} `json:"entry"`
}

func (r *runeEntry) parse() (*RuneEntry, error) {
	id, err := runestone.ParseRuneID(r.ID)
	if err != nil {
		return nil, err
	}
	return &RuneEntry{
		ID:           id,
		Name:         r.Entry.SpacedRune,
		Divisibility: r.Entry.Divisibility,
	}, nil
}

type pile struct {
	Amount       json.Number `json:"amount"`
	Divisibility int         `json:"divisibility"`
	Symbol       *string     `json:"symbol"`
}

// parse handles both the shapes in which ord servers report runes: a map of
// rune name to balance, and a list of [name, balance] pairs.
func (o *output) parse() (*Output, error) {
	out := &Output{
		Value:        o.Value,
		Indexed:      o.Indexed == nil || *o.Indexed,
		Spent:        o.Spent,
		Inscriptions: o.Inscriptions,
	}

	raw := bytes.TrimSpace(o.Runes)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	piles := make(map[string]pile)
	switch raw[0] {
	case '{':
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&piles); err != nil {
			return nil, fmt.Errorf("invalid runes: %w", err)
		}
	case '[':
		var pairs [][]json.RawMessage
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, fmt.Errorf("invalid runes: %w", err)
		}
		for _, pair := range pairs {
			if len(pair) != 2 {
				return nil, fmt.Errorf("invalid runes: malformed entry")
			}
			var name string
			if err := json.Unmarshal(pair[0], &name); err != nil {
				return nil, fmt.Errorf("invalid runes: %w", err)
			}
			var p pile
			dec := json.NewDecoder(bytes.NewReader(pair[1]))
			dec.UseNumber()
			if err := dec.Decode(&p); err != nil {
				return nil, fmt.Errorf("invalid runes: %w", err)
			}
			piles[name] = p
		}
	default:
		return nil, fmt.Errorf("invalid runes: unexpected json")
	}

	for name, p := range piles {
		amount, err := strconv.ParseUint(p.Amount.String(), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid amount for rune %s: %w", name, err)
		}
		r := Rune{Name: name, Amount: amount, Divisibility: p.Divisibility}
		if p.Symbol != nil {
			r.Symbol = *p.Symbol
		}
		out.Runes = append(out.Runes, r)
	}
	sort.Slice(out.Runes, func(i, j int) bool {
		return out.Runes[i].Name < out.Runes[j].Name
	})
	return out, nil
}
