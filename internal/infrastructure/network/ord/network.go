package ord

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/unitswap/internal/core/domain"
	"github.com/tdex-network/unitswap/internal/core/ports"
	"github.com/tdex-network/unitswap/pkg/runestone"
	"golang.org/x/sync/errgroup"
)

const maxConcurrentLookups = 8

type network struct {
	ports.SettlementNetwork
	client        *Client
	fungibleAsset string
}

// NewNetwork decorates the given settlement network by tagging every
// spendable output with the asset content reported by the ord server.
// fungibleAsset is the name of the rune used as fungible balance.
func NewNetwork(
	inner ports.SettlementNetwork, client *Client, fungibleAsset string,
) (ports.SettlementNetwork, error) {
	if inner == nil {
		return nil, fmt.Errorf("missing settlement network")
	}
	if client == nil {
		return nil, fmt.Errorf("missing ord client")
	}
	name := normalizeRuneName(fungibleAsset)
	if name == "" {
		return nil, fmt.Errorf("missing fungible asset name")
	}
	return &network{inner, client, name}, nil
}

func (n *network) GetSpendableOutputs(
	ctx context.Context, address string,
) ([]domain.Unspent, error) {
	unspents, err := n.SettlementNetwork.GetSpendableOutputs(ctx, address)
	if err != nil {
		return nil, err
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentLookups)
	for i := range unspents {
		u := &unspents[i]
		eg.Go(func() error {
			tag, err := n.tag(ctx, u.TxID, u.VOut)
			if err != nil {
				return err
			}
			u.Asset = tag
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return unspents, nil
}

// tag classifies the content of an output. Outputs the ord server has not
// indexed yet are tagged as foreign so that they are never spent as plain
// value.
func (n *network) tag(
	ctx context.Context, txid string, vout uint32,
) (domain.AssetTag, error) {
	out, err := n.client.GetOutput(ctx, txid, vout)
	if err != nil {
		if errors.Is(err, ErrOutputNotFound) {
			log.Debugf("ord: output %s:%d not indexed", txid, vout)
			return domain.Foreign(), nil
		}
		if errors.Is(err, ErrUnavailable) {
			return domain.AssetTag{}, fmt.Errorf("%w: %s", domain.ErrNetworkTransient, err)
		}
		return domain.AssetTag{}, err
	}

	tag := n.classify(out)
	if tag.Kind != domain.AssetKindUnique {
		return tag, nil
	}
	return n.locate(ctx, tag.UnitID, txid, vout)
}

func (n *network) classify(out *Output) domain.AssetTag {
	if !out.Indexed {
		return domain.Foreign()
	}

	switch {
	case len(out.Inscriptions) == 0 && len(out.Runes) == 0:
		return domain.NoAsset()
	case len(out.Inscriptions) == 1 && len(out.Runes) == 0:
		return domain.Unique(out.Inscriptions[0])
	case len(out.Inscriptions) == 0 && len(out.Runes) == 1 &&
		normalizeRuneName(out.Runes[0].Name) == n.fungibleAsset:
		return domain.Fungible(out.Runes[0].Amount)
	default:
		return domain.Foreign()
	}
}

// locate returns the unique tag carrying the offset of the inscribed sat
// within the output. An inscription the ord server places elsewhere is
// treated as foreign until both lookups agree.
func (n *network) locate(
	ctx context.Context, unitID, txid string, vout uint32,
) (domain.AssetTag, error) {
	in, err := n.client.GetInscription(ctx, unitID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Debugf("ord: inscription %s not indexed", unitID)
			return domain.Foreign(), nil
		}
		if errors.Is(err, ErrUnavailable) {
			return domain.AssetTag{}, fmt.Errorf("%w: %s", domain.ErrNetworkTransient, err)
		}
		return domain.AssetTag{}, err
	}
	if in.TxID != txid || in.VOut != vout {
		log.Debugf(
			"ord: inscription %s located at %s:%d, expected %s:%d",
			unitID, in.TxID, in.VOut, txid, vout,
		)
		return domain.Foreign(), nil
	}
	return domain.UniqueAt(unitID, in.Offset), nil
}

// ResolveRuneID returns the id of the rune with the given name.
func ResolveRuneID(
	ctx context.Context, client *Client, name string,
) (runestone.RuneID, error) {
	entry, err := client.GetRune(ctx, normalizeRuneName(name))
	if err != nil {
		return runestone.RuneID{}, err
	}
	if normalizeRuneName(entry.Name) != normalizeRuneName(name) {
		return runestone.RuneID{}, fmt.Errorf(
			"ord returned rune %s looking up %s", entry.Name, name,
		)
	}
	return entry.ID, nil
}

// normalizeRuneName drops the spacers of a rune name.
func normalizeRuneName(name string) string {
	name = strings.ReplaceAll(name, "•", "")
	name = strings.ReplaceAll(name, ".", "")
	return strings.ToUpper(strings.TrimSpace(name))
}
