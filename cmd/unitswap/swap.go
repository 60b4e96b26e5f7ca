package main

import (
	"context"

	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/urfave/cli/v2"
)

var build = cli.Command{
	Name:  "build",
	Usage: "build a swap draft to be signed, the escrow unspents stay reserved until it expires",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "direction",
			Usage:    "either unit_to_balance (sell a unit) or balance_to_unit (buy a unit)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "value_address",
			Usage:    "the address funding fees and receiving value change",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "value_pubkey",
			Usage:    "the hex encoded public key of the value address",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "unit_address",
			Usage:    "the address holding or receiving units and fungible balance",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "unit_pubkey",
			Usage:    "the hex encoded public key of the unit address",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "unit_id",
			Usage: "the id of the unit to buy or sell, any if omitted",
		},
		&cli.Uint64Flag{
			Name:  "balance_amount",
			Usage: "the fungible amount exchanged for the unit, the unit price if omitted",
		},
	},
	Action: buildAction,
}

var settle = cli.Command{
	Name:  "settle",
	Usage: "settle a signed swap draft",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "reservation_id",
			Usage: "the id of the reservation returned by build",
		},
		&cli.StringFlag{
			Name:     "tx",
			Usage:    "the signed draft, either a PSBT in base64 or hex format or a raw tx in hex",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "reserved_output",
			Usage: "an outpoint <txid>:<vout> reserved by build, repeat for each output",
		},
	},
	Action: settleAction,
}

func buildAction(ctx *cli.Context) error {
	client, cleanup, err := getSwapClient()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.BuildSwap(context.Background(), &swap.BuildSwapRequest{
		Direction:              ctx.String("direction"),
		UserValueAddress:       ctx.String("value_address"),
		UserValuePubkey:        ctx.String("value_pubkey"),
		UserUnitAddress:        ctx.String("unit_address"),
		UserUnitPubkey:         ctx.String("unit_pubkey"),
		RequestedUnitID:        ctx.String("unit_id"),
		RequestedBalanceAmount: ctx.Uint64("balance_amount"),
	})
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func settleAction(ctx *cli.Context) error {
	if ctx.String("reservation_id") == "" && len(ctx.StringSlice("reserved_output")) <= 0 {
		return &invalidUsageError{ctx, ctx.Command.Name}
	}

	client, cleanup, err := getSwapClient()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.SettleSwap(context.Background(), &swap.SettleSwapRequest{
		ReservationID:     ctx.String("reservation_id"),
		SignedTransaction: ctx.String("tx"),
		ReservedOutputs:   ctx.StringSlice("reserved_output"),
	})
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}
