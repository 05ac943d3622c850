// Package main provides qcached, a small CLI for exercising a persisted
// query cache directly: remember a query's result, look it up, and
// invalidate it by query or by graph. Each command runs on its own; there
// is no command for transactions.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sparqlcache/qcache/config"
	"github.com/sparqlcache/qcache/qcache"
)

var (
	version   = "0.1.0"
	cfgPath   string
	sharedCfg *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "qcached",
		Short: "qcached manages a persisted SPARQL query cache",
		Long: `qcached operates a query-cache engine directly against a Badger-backed
(optionally AES-256-GCM encrypted) store, without a live SPARQL endpoint
behind it. It exists to remember, look up, and invalidate cached query
results by hand while exercising the same engine a Store facade would
drive in production.`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a qcached YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("qcached v%s\n", version)
		},
	})

	rememberCmd := &cobra.Command{
		Use:   "remember <query> <result-json>",
		Short: "Memoize a SPARQL query's result",
		Args:  cobra.ExactArgs(2),
		RunE:  runRemember,
	}
	rootCmd.AddCommand(rememberCmd)

	lookupCmd := &cobra.Command{
		Use:   "lookup <query>",
		Short: "Look up a memoized result, if any",
		Args:  cobra.ExactArgs(1),
		RunE:  runLookup,
	}
	rootCmd.AddCommand(lookupCmd)

	invalidateQueryCmd := &cobra.Command{
		Use:   "invalidate-query <query>",
		Short: "Invalidate one memoized query, cascading through its RelatedGroup",
		Args:  cobra.ExactArgs(1),
		RunE:  runInvalidateQuery,
	}
	rootCmd.AddCommand(invalidateQueryCmd)

	invalidateGraphCmd := &cobra.Command{
		Use:   "invalidate-graph <graph-uri>",
		Short: "Invalidate every query that reads from graph-uri",
		Args:  cobra.ExactArgs(1),
		RunE:  runInvalidateGraph,
	}
	rootCmd.AddCommand(invalidateGraphCmd)

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create the data directory a Badger-backed store needs",
		RunE:  runInit,
	}
	rootCmd.AddCommand(initCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	if sharedCfg != nil {
		return sharedCfg
	}
	sharedCfg = config.LoadFromEnvOrFile(cfgPath)
	return sharedCfg
}

// openEngine builds an Engine over the configured store and returns a
// close func the caller must defer once it is done with the engine — a
// Badger-backed store needs its LSM tree flushed and its lock file
// released before the process exits.
func openEngine() (*qcache.Engine, func() error, error) {
	cfg := loadConfig()
	store, err := cfg.BuildStore()
	if err != nil {
		return nil, nil, fmt.Errorf("opening store: %w", err)
	}
	closeFn := func() error { return nil }
	if closer, ok := store.(interface{ Close() error }); ok {
		closeFn = closer.Close
	}
	return qcache.New(store, nil, nil), closeFn, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	if cfg.InMemory {
		fmt.Println("in-memory store configured; nothing to create on disk")
		return nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	fmt.Printf("data directory ready: %s\n", cfg.DataDir)
	return nil
}

func runRemember(cmd *cobra.Command, args []string) error {
	query, resultJSON := args[0], args[1]
	var result any
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return fmt.Errorf("result must be valid JSON: %w", err)
	}

	engine, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := engine.Remember(context.Background(), query, result); err != nil {
		return err
	}
	fmt.Println("remembered")
	return nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	result, ok, err := engine.Lookup(context.Background(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("miss")
		return nil
	}
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func runInvalidateQuery(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := engine.InvalidateByQuery(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("invalidated")
	return nil
}

func runInvalidateGraph(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := openEngine()
	if err != nil {
		return err
	}
	defer closeFn()
	if err := engine.InvalidateByGraph(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Println("invalidated")
	return nil
}
