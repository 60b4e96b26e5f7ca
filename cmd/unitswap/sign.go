package main

import (
	"context"
	"fmt"

	"github.com/tdex-network/unitswap/internal/infrastructure/escrow"
	"github.com/urfave/cli/v2"
)

// sign is a helper for test environments: user keys never reach the daemon.
var sign = cli.Command{
	Name:  "sign",
	Usage: "sign the user inputs of a swap draft with the given WIF keys (for testing only)",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "psbt",
			Usage:    "the base64 encoded draft returned by build",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:     "key",
			Usage:    "a WIF encoded private key, repeat for value and unit keys",
			Required: true,
		},
		&cli.IntSliceFlag{
			Name:     "input",
			Usage:    "the index of an input to sign, repeat for each input",
			Required: true,
		},
		&cli.UintFlag{
			Name:  "sighash",
			Usage: "the sighash type returned by build",
			Value: 0x81,
		},
	},
	Action: signAction,
}

func signAction(ctx *cli.Context) error {
	signer, err := escrow.NewWalletSigner(ctx.StringSlice("key")...)
	if err != nil {
		return err
	}

	signed, err := signer.Sign(
		context.Background(), ctx.String("psbt"), ctx.IntSlice("input"),
		uint32(ctx.Uint("sighash")),
	)
	if err != nil {
		return err
	}

	fmt.Println(signed)
	return nil
}
