package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"
)

var reservations = cli.Command{
	Name:   "reservations",
	Usage:  "list the active reservations on the escrow unspents",
	Action: listReservationsAction,
}

var outputs = cli.Command{
	Name:   "outputs",
	Usage:  "list the escrow unspents tracked by the daemon",
	Action: listOutputsAction,
}

var settlements = cli.Command{
	Name:   "settlements",
	Usage:  "list the receipts of settled swaps",
	Action: listSettlementsAction,
}

var reconcile = cli.Command{
	Name:   "reconcile",
	Usage:  "align the escrow unspents with the network",
	Action: reconcileAction,
}

func listReservationsAction(ctx *cli.Context) error {
	client, cleanup, err := getSwapClient()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.ListReservations(context.Background())
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func listOutputsAction(ctx *cli.Context) error {
	client, cleanup, err := getSwapClient()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.ListOutputs(context.Background())
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func listSettlementsAction(ctx *cli.Context) error {
	client, cleanup, err := getSwapClient()
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := client.ListSettlements(context.Background())
	if err != nil {
		return err
	}

	printRespJSON(resp)
	return nil
}

func reconcileAction(ctx *cli.Context) error {
	client, cleanup, err := getSwapClient()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := client.Reconcile(context.Background()); err != nil {
		return err
	}

	fmt.Println("escrow unspents reconciled")
	return nil
}
