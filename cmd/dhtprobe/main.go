package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"dhtprobe/internal/config"
	"dhtprobe/internal/dht"
	"dhtprobe/internal/model"
	"dhtprobe/internal/netdiag"
	"dhtprobe/internal/prober"
	"dhtprobe/internal/stats"
	"dhtprobe/internal/store"
)

const usage = `dhtprobe - DHT record availability prober

Usage:
  dhtprobe init --config <path> [--store <path|url>] [--node <url>] [--target <n>]
  dhtprobe run --config <path>
  dhtprobe stats [--config <path>] [--store <path|url>]
  dhtprobe export csv [--config <path>] [--store <path|url>] [--out <file>]
  dhtprobe doctor [--config <path>]

run executes exactly one maintenance cycle and exits; schedule repeated
runs externally (cron, systemd timer). Do not overlap runs against the
same store: the last writer wins and the other run's updates are lost.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch cmd := os.Args[1]; cmd {
	case "-h", "--help", "help":
		fmt.Print(usage)
	case "init":
		handleInit(os.Args[2:])
	case "run":
		handleRun(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "export":
		handleExport(os.Args[2:])
	case "doctor":
		handleDoctor(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func handleInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", "dhtprobe.yaml", "path to YAML config")
	storeLoc := fs.String("store", "", "snapshot path or http(s) URL")
	nodeAddr := fs.String("node", "", "node daemon base URL")
	target := fs.Int("target", 0, "target active probe population")
	_ = fs.Parse(args)

	cfg := config.Config{
		Store:            *storeLoc,
		NodeAddr:         *nodeAddr,
		TargetPopulation: *target,
	}
	config.ApplyDefaults(&cfg)
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := config.Save(*configPath, cfg); err != nil {
		log.Fatalf("write config: %v", err)
	}
	fmt.Printf("wrote %s\n", *configPath)
}

func handleRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Nothing can be done without a session, so connect before touching the
	// store; the last good snapshot stays untouched when the daemon is down.
	sess, err := dht.Connect(ctx, cfg.NodeAddr)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer sess.Close()

	if cfg.PurgeOnStart == nil || *cfg.PurgeOnStart {
		if err := sess.DebugPurge(ctx, "routes"); err != nil {
			log.Printf("purge routes failed: %v", err)
		}
	}

	sched := &prober.Scheduler{
		Session: sess,
		Store:   store.Open(cfg.Store),
		Config:  cfg,
	}

	summary, err := sched.RunCycle(ctx)
	if err != nil {
		if errors.Is(err, store.ErrCorruptStore) {
			log.Fatalf("refusing to continue: %v", err)
		}
		log.Fatalf("maintenance cycle: %v", err)
	}

	log.Printf("cycle done: evaluated=%d newly_failed=%d created=%d create_failed=%d active=%d/%d total=%d",
		summary.Evaluated, summary.NewlyFailed, summary.Created, summary.CreateFailed,
		summary.Active, cfg.TargetPopulation, summary.Total)
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	storeLoc := fs.String("store", "", "snapshot path or http(s) URL (overrides config)")
	_ = fs.Parse(args)

	records := mustLoadRecords(*configPath, *storeLoc)
	s := stats.Summarize(records)

	fmt.Printf("probes: total=%d active=%d failed=%d\n", s.Total, s.Active, s.Failed)
	fmt.Printf("evaluations: count=%d avg=%.3fs p95=%.3fs min=%.3fs max=%.3fs\n",
		s.Evaluations, s.AvgDurationS, s.P95DurationS, s.MinDurationS, s.MaxDurationS)
	fmt.Printf("payload: avg=%.0fB\n", s.AvgPayloadB)

	intervals := make([]int, 0, len(s.Lifetimes))
	for h := range s.Lifetimes {
		intervals = append(intervals, h)
	}
	sort.Ints(intervals)
	for _, h := range intervals {
		ls := s.Lifetimes[h]
		fmt.Printf("lifetime interval=%dh: count=%d failed=%d avg=%.1fh min=%.1fh max=%.1fh\n",
			h, ls.Count, ls.Failed, ls.AvgH, ls.MinH, ls.MaxH)
	}
}

func handleExport(args []string) {
	if len(args) == 0 || args[0] != "csv" {
		fmt.Fprint(os.Stderr, "export subcommand required: csv\n")
		os.Exit(2)
	}

	fs := flag.NewFlagSet("export csv", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	storeLoc := fs.String("store", "", "snapshot path or http(s) URL (overrides config)")
	out := fs.String("out", "", "output file (default stdout)")
	_ = fs.Parse(args[1:])

	records := mustLoadRecords(*configPath, *storeLoc)

	var w io.Writer = os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create %s: %v", *out, err)
		}
		defer f.Close()
		w = f
	}

	if err := stats.WriteCSV(w, records); err != nil {
		log.Fatalf("export csv: %v", err)
	}
}

func handleDoctor(args []string) {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "path to YAML config")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sess, err := dht.Connect(ctx, cfg.NodeAddr); err != nil {
		fmt.Printf("node daemon %s: unreachable (%v)\n", cfg.NodeAddr, err)
	} else {
		sess.Close()
		fmt.Printf("node daemon %s: ok\n", cfg.NodeAddr)
	}

	report, err := netdiag.Diagnose(ctx, cfg.STUNServers, 5*time.Second)
	if err != nil {
		fmt.Printf("stun: failed (%v)\n", err)
		return
	}
	fmt.Printf("public address: %s\n", report.PublicAddr)
	fmt.Printf("nat type: %s\n", report.NATType)
	if report.NATType == netdiag.NATTypeSymmetric {
		fmt.Println("warning: symmetric NAT; failed reads may reflect local reachability, not record loss")
	}
}

// loadConfig reads the config file, or falls back to defaults when no path
// is given.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		var cfg config.Config
		config.ApplyDefaults(&cfg)
		return cfg, nil
	}
	return config.Load(path)
}

func mustLoadRecords(configPath, storeLoc string) map[string]model.ProbeRecord {
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if storeLoc != "" {
		cfg.Store = storeLoc
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records, err := store.Open(cfg.Store).Load(ctx)
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}
	return records
}
