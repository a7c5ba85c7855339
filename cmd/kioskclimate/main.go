package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	kiosk "github.com/CUMTD/Mtd.Kiosk"
)

const defaultConfigPath = "./configs/kioskclimate.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "aggregate":
		err = aggregateCommand(os.Args[2:])
	case "report":
		err = reportCommand(os.Args[2:])
	case "poll":
		err = pollCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("kioskclimate %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to service configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := kiosk.LoadConfig(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := kiosk.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	return rt.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := kiosk.LoadConfig(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

// openRuntime builds a runtime for one-shot commands. The caller must Close it.
func openRuntime(ctx context.Context, cfgPath string) (*kiosk.Runtime, error) {
	cfg, err := kiosk.LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return kiosk.NewRuntime(ctx, cfg)
}

func aggregateCommand(args []string) error {
	fs := flag.NewFlagSet("aggregate", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to service configuration file")
	date := fs.String("date", "", "Fleet-local day to roll up (YYYY-MM-DD, default yesterday)")
	days := fs.Int("days", 1, "Number of consecutive days ending at -date to roll up")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days < 1 {
		return fmt.Errorf("-days must be at least 1")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	loc := rt.Location()
	last := time.Now().In(loc).AddDate(0, 0, -1)
	if *date != "" {
		d, err := time.ParseInLocation(time.DateOnly, *date, loc)
		if err != nil {
			return fmt.Errorf("-date %q: expected YYYY-MM-DD", *date)
		}
		last = d.Add(12 * time.Hour)
	}

	var errs []error
	for i := *days - 1; i >= 0; i-- {
		day := last.AddDate(0, 0, -i)
		report, err := rt.Aggregate(ctx, day)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", day.Format(time.DateOnly), err))
			continue
		}
		fmt.Printf("%s kiosks=%d aggregated=%d empty=%d failed=%d took=%s\n",
			report.Date.Format(time.DateOnly), report.Kiosks, len(report.Aggregated),
			len(report.Empty), len(report.Failed), report.Duration.Round(time.Millisecond))
		for _, f := range report.Failed {
			fmt.Printf("  %s: %v\n", f.KioskID, f.Err)
		}
	}
	return errors.Join(errs...)
}

func reportCommand(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to service configuration file")
	kioskID := fs.String("kiosk", "", "Only report this kiosk")
	asJSON := fs.Bool("json", false, "Print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	var fleet []kiosk.KioskHistory
	if *kioskID != "" {
		days, err := rt.DailyHistory(ctx, *kioskID)
		if err != nil {
			return err
		}
		if len(days) > 0 {
			fleet = []kiosk.KioskHistory{{KioskID: *kioskID, Days: days}}
		}
	} else {
		fleet, err = rt.DailyStatistics(ctx)
		if err != nil {
			return err
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fleet)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIOSK\tDATE\tSENSOR\tSAMPLES\tTEMP MIN/MEAN/MAX\tHUMIDITY MIN/MEAN/MAX")
	for _, k := range fleet {
		for _, d := range k.Days {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d/%d/%d\t%d/%d/%d\n",
				k.KioskID, d.Date.Format(time.DateOnly), d.SensorType, d.SampleCount,
				d.MinTemperature, d.MeanTemperature, d.MaxTemperature,
				d.MinHumidity, d.MeanHumidity, d.MaxHumidity)
		}
	}
	return tw.Flush()
}

func pollCommand(args []string) error {
	fs := flag.NewFlagSet("poll", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to service configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, *cfgPath)
	if err != nil {
		return err
	}
	defer rt.Close()

	ok := rt.PollCoolingUnits(ctx)
	fmt.Printf("polled cooling units: %d succeeded\n", ok)
	for _, s := range rt.BreakerSnapshots() {
		fmt.Printf("  %s breaker=%s failure_ratio=%.2f calls=%d\n", s.Target, s.State, s.FailureRatio, s.SampleCount)
	}
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsMetrics = []string{
	"kiosk_samples_accepted_total",
	"kiosk_samples_rejected_total",
	"kiosk_queue_length",
	"kiosk_rollup_failures_total",
	"kiosk_fetch_failures_total",
}

func printMetricsSnapshot(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values := make(map[string]float64, len(statsMetrics))
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range statsMetrics {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					values[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] accepted=%.0f rejected=%.0f queue=%.0f rollup_failures=%.0f fetch_failures=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["kiosk_samples_accepted_total"],
		values["kiosk_samples_rejected_total"],
		values["kiosk_queue_length"],
		values["kiosk_rollup_failures_total"],
		values["kiosk_fetch_failures_total"],
	)
	return nil
}

func printUsage() {
	fmt.Printf(`Kiosk climate telemetry CLI

Usage:
  kioskclimate <command> [flags]

Commands:
  run        Start the service using the provided config
  validate   Load and validate a config file without starting the service
  aggregate  Roll up one or more completed fleet days
  report     Print stored daily statistics
  poll       Run one cooling unit poll cycle and print breaker state
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  kioskclimate run -config ./configs/kioskclimate.yaml
  kioskclimate validate -config ./configs/kioskclimate.yaml
  kioskclimate aggregate -date 2024-03-01 -days 7
  kioskclimate report -kiosk kiosk-12 -json
  kioskclimate stats -url http://localhost:9100/metrics -interval 1s
`)
}
