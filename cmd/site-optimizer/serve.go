package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/site-optimizer/pkg/api"
	"github.com/opscart/site-optimizer/pkg/storage"
)

var (
	// Serve flags
	listenAddr     string
	reloadInterval time.Duration
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only HTTP view of the inventory and /metrics",
		Run:   runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (defaults to LISTEN_ADDR)")
	serveCmd.Flags().DurationVar(&reloadInterval, "reload-interval", time.Minute, "How often to reload the inventory file (0 disables)")
	return serveCmd
}

func runServe(cmd *cobra.Command, args []string) {
	addr := listenAddr
	if addr == "" {
		addr = cfg.ListenAddr
	}

	var history storage.Store
	if store, err := openHistory(); err != nil {
		fmt.Printf("[WARN] Deployment history unavailable: %v\n", err)
	} else {
		history = store
		defer store.Close()
	}

	srv, err := api.New(api.Config{
		Inventory:        inventoryConfig(),
		Tier1MinVisitors: cfg.Tier1MinVisitors,
		Tier2MinVisitors: cfg.Tier2MinVisitors,
		History:          history,
	})
	if err != nil {
		exitWithError(err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("[INFO] Serving on %s\n", addr)
	if err := srv.ListenAndServe(ctx, addr, reloadInterval); err != nil {
		exitWithError(err)
	}
}
