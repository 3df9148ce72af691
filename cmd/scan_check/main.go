// Package main runs one scan of every configured adapter and prints the
// transfers that would be upserted, without touching any store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/payment-scanner/internal/adapter"
	"github.com/payment-scanner/internal/app"
	"github.com/payment-scanner/internal/config"
	apperrors "github.com/payment-scanner/internal/errors"
	"github.com/payment-scanner/internal/types"
)

type scanOutcome struct {
	network   types.Network
	address   string
	transfers []*types.Transfer
	err       error
	took      time.Duration
}

func main() {
	timeout := flag.Duration("timeout", 60*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	app.InitLogging(cfg)

	adapters, err := app.BuildAdapters(cfg)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if len(adapters) == 0 {
		fmt.Println("Error: neither TRC20_ADDRESS nor BEP20_ADDRESS is set")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	outcomes := make([]scanOutcome, len(adapters))
	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(i int, a adapter.ChainAdapter) {
			defer wg.Done()
			start := time.Now()
			transfers, err := a.Scan(ctx)
			outcomes[i] = scanOutcome{
				network:   a.Network(),
				address:   a.Address(),
				transfers: transfers,
				err:       err,
				took:      time.Since(start),
			}
		}(i, a)
	}
	wg.Wait()

	failed := false
	for _, o := range outcomes {
		fmt.Printf("=== %s (%s) ===\n", o.network, o.address)
		if o.err != nil {
			failed = true
			category := "unknown"
			if sf, ok := adapter.AsScanFailure(o.err); ok {
				category = string(apperrors.Categorize(sf.Cause).Category)
			}
			fmt.Printf("FAILED after %v [%s]: %v\n\n", o.took.Round(time.Millisecond), category, o.err)
			continue
		}

		fmt.Printf("%d matching transfers in %v\n", len(o.transfers), o.took.Round(time.Millisecond))
		for _, t := range o.transfers {
			fmt.Printf("  %-66s %s\n", t.Hash, t.Amount.String())
		}
		fmt.Println()
	}

	if failed {
		os.Exit(1)
	}
}
