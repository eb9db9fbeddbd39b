// ordertool 訂單檔案維護工具：匯出 CSV、清除舊的已完成訂單
package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gomitas-bot/internal/core/order"
	"gomitas-bot/internal/infrastructure/storage"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
)

const usage = `Usage:
  ordertool export [--data-dir DIR] [--out FILE]
  ordertool purge  [--data-dir DIR] [--days N] [--dry-run]
`

var csvHeader = []string{"id", "status", "createdAt", "customerName", "phone", "total", "itemsCount", "itemsSummary"}

func main() {
	_ = godotenv.Load()
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr, time.Now()))
}

func defaultDataDir() string {
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		return dir
	}
	return "data"
}

// run 執行子命令並回傳結束代碼
func run(ctx context.Context, args []string, stdout, stderr io.Writer, now time.Time) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "export":
		err = runExport(ctx, args[1:], stdout)
	case "purge":
		err = runPurge(ctx, args[1:], stdout, now)
	case "-h", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n%s", args[0], usage)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

func runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "directory containing orders.json")
	out := fs.StringP("out", "o", "", "write CSV to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	repo, err := storage.NewFileOrderRepository(*dataDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	orders, err := repo.List(ctx)
	if err != nil {
		return err
	}

	if *out == "" {
		return writeCSV(stdout, orders)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", *out, err)
	}
	if err := writeCSV(f, orders); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(stdout, "CSV written to", *out)
	return nil
}

// writeCSV 每筆訂單一列；itemsSummary 形如 "2x panditas | 1x aros"
func writeCSV(w io.Writer, orders []order.Order) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, o := range orders {
		parts := make([]string, len(o.Items))
		for i, it := range o.Items {
			qty := it.Quantity
			if qty <= 0 {
				qty = 1
			}
			parts[i] = fmt.Sprintf("%dx %s", qty, it.Name)
		}

		createdAt := ""
		if !o.CreatedAt.IsZero() {
			createdAt = o.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		}

		record := []string{
			o.ID,
			string(o.Status),
			createdAt,
			o.Customer.Name,
			o.Customer.Phone,
			strconv.FormatFloat(o.Total, 'f', 2, 64),
			strconv.Itoa(len(o.Items)),
			strings.Join(parts, " | "),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func runPurge(ctx context.Context, args []string, stdout io.Writer, now time.Time) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	dataDir := fs.String("data-dir", defaultDataDir(), "directory containing orders.json")
	days := fs.IntP("days", "d", 30, "remove done orders created more than this many days ago")
	dryRun := fs.Bool("dry-run", false, "report without writing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 0 {
		return fmt.Errorf("--days must not be negative")
	}

	repo, err := storage.NewFileOrderRepository(*dataDir)
	if err != nil {
		return err
	}
	defer repo.Close()

	cutoff := now.Add(-time.Duration(*days) * 24 * time.Hour)
	removed, total, err := repo.Purge(ctx, cutoff, *dryRun)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Found %d orders. Removing %d done orders older than %d days.\n", total, removed, *days)
	if *dryRun {
		fmt.Fprintln(stdout, "Dry-run: no changes written.")
	} else {
		fmt.Fprintln(stdout, "Orders file updated:", filepath.Join(*dataDir, "orders.json"))
	}
	return nil
}
