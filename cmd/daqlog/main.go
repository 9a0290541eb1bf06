package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/subradiance/daqlog"
	"github.com/subradiance/daqlog/internal/adapters/transport"
	"github.com/subradiance/daqlog/internal/analysis"
)

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
	case "ports":
		err = portsCommand()
	case "stats":
		err = statsCommand(os.Args[2:])
	case "split":
		err = splitCommand(os.Args[2:])
	case "allan":
		err = allanCommand(os.Args[2:])
	case "baseline":
		err = baselineCommand(os.Args[2:])
	case "fit":
		err = fitCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("daqlog %s: %v", cmd, err)
	}
}

func loadConfig(path, envFile string) (*daqlog.Config, error) {
	if err := daqlog.LoadDotEnv(envFile); err != nil {
		return nil, err
	}
	return daqlog.LoadConfig(path)
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to acquisition configuration file")
	envFile := fs.String("env", ".env", "Optional .env file with DAQLOG_* overrides")
	simulate := fs.Bool("simulate", false, "Use simulated devices instead of hardware")
	cycles := fs.Uint64("cycles", 0, "Stop after this many cycles (0 runs until interrupted)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath, *envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *simulate {
		cfg.Simulate = true
	}
	if *cycles > 0 {
		cfg.Acquisition.MaxCycles = *cycles
	}

	rt, err := daqlog.NewRuntime(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("logging to %s (Ctrl+C to stop)\n", rt.LogPath())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = rt.Run(ctx)
	fmt.Printf("session %s: %s\n", rt.State(), rt.LogPath())
	return err
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./config.yaml", "Path to configuration file to validate")
	envFile := fs.String("env", ".env", "Optional .env file with DAQLOG_* overrides")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := loadConfig(*cfgPath, *envFile); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func portsCommand() error {
	ports, err := transport.Ports()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return nil
	}
	for _, p := range ports {
		fmt.Println(p)
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
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"daqlog_cycles_total":          0,
		"daqlog_device_failures_total": 0,
		"daqlog_log_size_bytes":        0,
		"daqlog_cadence_hz":            0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for key := range targets {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					targets[key] = value
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] cycles=%.0f failures=%.0f log_bytes=%.0f cadence=%.3fHz\n",
		time.Now().Format(time.RFC3339),
		targets["daqlog_cycles_total"],
		targets["daqlog_device_failures_total"],
		targets["daqlog_log_size_bytes"],
		targets["daqlog_cadence_hz"],
	)
	return nil
}

func splitCommand(args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	window := fs.Int("window", analysis.DefaultSplitWindow, "Successive points that confirm a trend change")
	threshold := fs.Float64("threshold", analysis.DefaultSplitThreshold, "Pressure step treated as constant")
	transient := fs.Bool("st", false, "Also save the transient phase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := onePath(fs)
	if err != nil {
		return err
	}

	l, err := analysis.ReadLogFile(path)
	if err != nil {
		return err
	}
	phases, err := analysis.SplitPhases(l, *window, *threshold)
	if err != nil {
		return err
	}
	if !phases.Split() {
		fmt.Println("no clear pressurization phases found, writing the whole log")
	}
	written, err := analysis.SavePhases(path, phases, *transient)
	for _, w := range written {
		fmt.Println(w)
	}
	return err
}

func allanCommand(args []string) error {
	fs := flag.NewFlagSet("allan", flag.ExitOnError)
	points := fs.Int("points", analysis.DefaultAllanPoints, "Number of log-spaced averaging factors")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := onePath(fs)
	if err != nil {
		return err
	}

	l, err := analysis.ReadLogFile(path)
	if err != nil {
		return err
	}
	spec, err := l.Spectrum()
	if err != nil {
		return err
	}
	interval, err := l.SampleInterval()
	if err != nil {
		return err
	}

	pts := analysis.AllanDeviation(analysis.RowMeans(spec), interval, *points)
	best, ok := analysis.OptimalTau(pts)
	if !ok {
		return fmt.Errorf("%s: too few complete rows for an Allan deviation", path)
	}
	fmt.Println("tau_s,m,deviation")
	for _, p := range pts {
		fmt.Printf("%g,%d,%g\n", p.Tau, p.M, p.Deviation)
	}
	fmt.Printf("# optimal integration time %.1fs (deviation %g)\n", best.Tau, best.Deviation)
	return nil
}

func baselineCommand(args []string) error {
	fs := flag.NewFlagSet("baseline", flag.ExitOnError)
	window := fs.Int("window", analysis.DefaultBaselineWindow, "Savitzky-Golay window length (odd)")
	order := fs.Int("order", analysis.DefaultBaselineOrder, "Savitzky-Golay polynomial order")
	out := fs.String("out", "", "Write the baseline CSV here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := onePath(fs)
	if err != nil {
		return err
	}

	l, err := analysis.ReadLogFile(path)
	if err != nil {
		return err
	}
	spec, err := l.Spectrum()
	if err != nil {
		return err
	}
	freqs, err := l.Frequencies()
	if err != nil {
		return err
	}
	base, err := analysis.Baseline(spec, *window, *order)
	if err != nil {
		return err
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"Frequency (Hz)", "Baseline"})
	for i, f := range freqs {
		_ = cw.Write([]string{strconv.FormatFloat(f, 'f', -1, 64), strconv.FormatFloat(base[i], 'g', -1, 64)})
	}
	cw.Flush()
	return cw.Error()
}

func fitCommand(args []string) error {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	order := fs.Int("order", analysis.DefaultContinuumOrder, "Continuum polynomial order")
	out := fs.String("out", "", "Output log (default <log>_continuum.csv)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := onePath(fs)
	if err != nil {
		return err
	}

	l, err := analysis.ReadLogFile(path)
	if err != nil {
		return err
	}
	spec, err := l.Spectrum()
	if err != nil {
		return err
	}
	flat, continuum, err := analysis.SubtractContinuum(spec, *order)
	if err != nil {
		return err
	}
	result, err := l.WithSpectrum(flat)
	if err != nil {
		return err
	}

	dst := *out
	if dst == "" {
		dst = strings.TrimSuffix(path, ".csv") + "_continuum.csv"
	}
	if err := analysis.WriteLogFile(dst, result); err != nil {
		return err
	}
	fmt.Printf("subtracted order-%d continuum (%d bins) into %s\n", *order, len(continuum), dst)
	return nil
}

func onePath(fs *flag.FlagSet) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one log file, got %d", fs.NArg())
	}
	return fs.Arg(0), nil
}

func printUsage() {
	fmt.Printf(`daqlog - lab acquisition logger

Usage:
  daqlog <command> [flags]

Commands:
  run        Poll the enabled devices and write a session log
  validate   Load and validate a config file without opening devices
  ports      List serial ports
  stats      Poll the Prometheus metrics endpoint and print live counters
  split      Split a log into depressurization, transient and repressurization
  allan      Allan deviation of the mean spectrum over averaging time
  baseline   Savitzky-Golay baseline of the mean spectrum
  fit        Subtract a polynomial continuum from every spectrum row

Examples:
  daqlog run -config ./config.yaml
  daqlog run -config ./config.yaml -simulate -cycles 100
  daqlog split -st ./logs/ExperimentLog_20260120-135313.csv
  daqlog allan ./logs/ExperimentLog_20260120-135313.csv
  daqlog baseline -window 81 -order 3 -out baseline.csv ./logs/ExperimentLog_20260120-135313.csv
`)
}
