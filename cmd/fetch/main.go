package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"quoteboard/internal/app"
	"quoteboard/internal/board"
	"quoteboard/internal/config"
	"quoteboard/internal/logger"
	"quoteboard/internal/view"
)

func main() {
	var (
		configPath string
		symbolsCSV string
		search     string
		sortFlag   string
		verbose    bool
	)
	flag.StringVar(&configPath, "config", "", "path to config.yaml (defaults to CONFIG_FILE, then ./config.yaml)")
	flag.StringVar(&symbolsCSV, "symbols", "", "comma-separated symbols; overrides the configured watch-list")
	flag.StringVar(&search, "search", "", "case-insensitive symbol filter")
	flag.StringVar(&sortFlag, "sort", "none", "none | price | change")
	flag.BoolVar(&verbose, "v", false, "log fetch progress to stderr")
	flag.Parse()

	sortKey, err := view.ParseSortKey(sortFlag)
	if err != nil {
		log.Fatalf("sort: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if symbolsCSV != "" {
		cfg.Watchlist.Symbols = strings.Split(symbolsCSV, ",")
	}
	cfg.Watchlist.RefreshIntervalSec = 0

	lg := zap.NewNop()
	if verbose {
		logCfg := cfg.Log
		logCfg.Format = "console"
		logCfg.Outputs = []string{"stderr"}
		if lg, err = logger.New(logCfg); err != nil {
			log.Fatalf("logger: %v", err)
		}
	}

	b, err := app.NewBoard(cfg, lg, nil)
	if err != nil {
		log.Fatalf("board: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := b.Refresh(ctx); err != nil {
		log.Fatalf("%s: %v", b.View().Error, err)
	}
	res := b.ViewFor(view.State{Search: search, Sort: sortKey})
	if err := printTable(os.Stdout, res); err != nil {
		log.Fatalf("write: %v", err)
	}
}

func printTable(w io.Writer, res board.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\tCHANGE\t")
	for _, r := range view.Rows(res.Quotes) {
		arrow := "▲"
		if r.Direction == "down" {
			arrow = "▼"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s %s\t\n", r.Symbol, r.PriceText, arrow, r.ChangeText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d quotes, fetched %s\n", len(res.Quotes), res.FetchedAt.Format("2006-01-02 15:04:05"))
	return err
}
