// Command botpulse-fetch renders one department dashboard without the HTTP
// server, for checking a catalog against live spreadsheets.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/okian/botpulse/internal/adapters/export"
	"github.com/okian/botpulse/internal/adapters/sheets"
	app "github.com/okian/botpulse/internal/app"
	"github.com/okian/botpulse/internal/catalog"
	"github.com/okian/botpulse/internal/config"
	"github.com/okian/botpulse/internal/domain/model"
	"github.com/okian/botpulse/pkg/logger"
)

const defaultTimeout = 2 * time.Minute

var errUsage = errors.New("usage")

type options struct {
	department string
	date       string
	format     string
	output     string
	ranges     string
	timeout    time.Duration
	verbose    bool
}

func main() {
	var o options
	flag.StringVar(&o.department, "dept", "", "Department id from the catalog (required)")
	flag.StringVar(&o.date, "date", "", "Dashboard date as YYYY-MM-DD (default: today in the configured timezone)")
	flag.StringVar(&o.format, "format", "json", "Output format: json or xlsx")
	flag.StringVar(&o.output, "out", "", "Output file (default: stdout for json, {dept}-{date}.xlsx for xlsx)")
	flag.StringVar(&o.ranges, "ranges", "", "Comma separated A1 ranges to dump raw instead of rendering the dashboard")
	flag.DurationVar(&o.timeout, "timeout", defaultTimeout, "Overall timeout")
	flag.BoolVar(&o.verbose, "verbose", false, "Log to stderr")
	flag.Parse()

	if err := run(o, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			flag.Usage()
		}
		fmt.Fprintln(os.Stderr, "botpulse-fetch:", err)
		os.Exit(1)
	}
}

func run(o options, stdout io.Writer) error {
	if o.department == "" {
		return fmt.Errorf("%w: -dept is required", errUsage)
	}
	if o.format != "json" && o.format != "xlsx" {
		return fmt.Errorf("%w: unknown format %q", errUsage, o.format)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	log := logger.Nop()
	if o.verbose {
		if err := logger.InitWith(os.Stderr, cfg.LogFormat); err != nil {
			return err
		}
		_ = logger.SetLevelString(cfg.LogLevel)
		log = logger.Get()
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	client := sheets.New(
		sheets.WithAPIKey(cfg.SheetsAPIKey),
		sheets.WithBaseURL(cfg.SheetsBaseURL),
		sheets.WithProxies(cfg.SheetsProxies...),
		sheets.WithMaxAttempts(cfg.SheetsMaxAttempts),
		sheets.WithBackoff(config.Ms(cfg.SheetsInitialBackoffMS), config.Ms(cfg.SheetsMaxBackoffMS)),
		sheets.WithMaxRetryAfter(config.Ms(cfg.SheetsMaxRetryAfterMS)),
		sheets.WithTimeout(config.Ms(cfg.SheetsRequestTimeoutMS)),
		sheets.WithLogger(log.Named("sheets")),
	)

	if o.ranges != "" {
		return dumpRanges(ctx, client, cat, o, stdout)
	}

	svc := app.New(catalog.Static(cat), client,
		app.WithLocation(cfg.Location()),
		app.WithMovingAverageWindow(cfg.MovingAverageWindow),
		app.WithFetchTimeout(config.Ms(cfg.FetchTimeoutMS)),
		app.WithLogger(log.Named("service")),
	)
	date := svc.Today()
	if o.date != "" {
		date, err = time.ParseInLocation(model.DateLayout, o.date, cfg.Location())
		if err != nil {
			return fmt.Errorf("%w: bad -date: %w", errUsage, err)
		}
	}

	d, err := svc.Dashboard(ctx, o.department, date)
	if err != nil {
		return err
	}
	if o.format == "xlsx" {
		return writeWorkbook(d, o)
	}
	return writeOutput(o.output, stdout, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	})
}

// dumpRanges prints the raw cell grids of the requested ranges in one batch call.
func dumpRanges(ctx context.Context, client *sheets.Client, cat *catalog.Catalog, o options, stdout io.Writer) error {
	dept, err := cat.Department(o.department)
	if err != nil {
		return err
	}
	var ranges []string
	for _, r := range strings.Split(o.ranges, ",") {
		if r = strings.TrimSpace(r); r != "" {
			ranges = append(ranges, r)
		}
	}
	values, err := client.BatchGet(ctx, dept.SpreadsheetID, ranges...)
	if err != nil {
		return err
	}
	return writeOutput(o.output, stdout, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	})
}

func writeWorkbook(d model.Dashboard, o options) error {
	path := o.output
	if path == "" {
		path = fmt.Sprintf("%s-%s.xlsx", d.Department, d.Date)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, d); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
