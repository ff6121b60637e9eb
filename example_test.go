package praxisbridge_test

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/maraxen/praxisbridge"
)

// Example_run demonstrates booting a bridge with the embedded asset bundle
// and running one submission synchronously.
func Example_run() {
	ctx := context.Background()

	bridge, err := praxisbridge.New(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer bridge.Close()

	res, err := praxisbridge.Run(ctx, bridge.Controller, `print(6 * 7)`)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(strings.Join(res.Stdout, "\n"))
}

// Example_foreignCalls demonstrates answering device reads from the host.
// The submission suspends inside read_sensor until the handler returns.
func Example_foreignCalls() {
	ctx := context.Background()

	bridge, err := praxisbridge.New(ctx, praxisbridge.WithForeignHandler(
		praxisbridge.ForeignHandlerFuncs{
			DeviceRead: func(ctx context.Context, req praxisbridge.DeviceReadPayload) (any, error) {
				// A real host would talk to hardware here.
				return map[string]any{"device": req.Device, "value": 21.5}, nil
			},
		}))
	if err != nil {
		log.Fatal(err)
	}
	defer bridge.Close()

	res, err := praxisbridge.Run(ctx, bridge.Controller,
		`print(read_sensor("scale")["value"])`)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(strings.Join(res.Stdout, "\n"))
}

// Example_history demonstrates recording the execution lifecycle into a
// history store and querying it afterwards.
func Example_history() {
	ctx := context.Background()

	store := praxisbridge.NewMemoryHistory()

	bridge, err := praxisbridge.New(ctx, praxisbridge.WithHistory(store))
	if err != nil {
		log.Fatal(err)
	}

	h, err := bridge.Controller.Submit(ctx, `print("hello")`)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := h.Drain(ctx); err != nil {
		log.Fatal(err)
	}
	bridge.Close()

	records, err := store.ListRecords(ctx, h.ID())
	if err != nil {
		log.Fatal(err)
	}
	for _, rec := range records {
		fmt.Printf("%s %s\n", rec.Kind, rec.Request)
	}
}
