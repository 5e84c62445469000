package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"

	"github.com/srodi/procscope/pkg/config"
	"github.com/srodi/procscope/pkg/engine"
	"github.com/srodi/procscope/pkg/report"
	"github.com/srodi/procscope/pkg/store"
	"github.com/srodi/procscope/pkg/types"
	"github.com/srodi/procscope/pkg/ui"
)

func loadConfig() (config.Config, string, error) {
	configPath := flag.String("config", "", "optional YAML config file")
	interval := flag.Duration("interval", 0, "sampling interval (e.g. 2s); overrides the config file")
	topK := flag.Int("topk", 0, "number of rows to display per section")
	hideKernel := flag.Bool("hide-kernel", true, "hide kernel threads such as kworker, ksoftirqd, etc")
	filter := flag.String("filter", "", "only show rows whose name contains this substring (case-insensitive)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return cfg, "", err
		}
		cfg = loaded
	}
	if *interval > 0 {
		cfg.Interval = *interval
	}
	if *topK > 0 {
		cfg.TopK = *topK
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "hide-kernel" {
			cfg.HideKernel = *hideKernel
		}
	})
	return cfg, strings.ToLower(strings.TrimSpace(*filter)), nil
}

func main() {
	cfg, filter, err := loadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("loading configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(engine.Options{
		Interval:   cfg.Interval,
		HistoryLen: cfg.HistoryLen,
		CPUClamp:   cfg.CPUClamp,
		Filter:     cfg.Exclude(),
		SkipKernel: cfg.HideKernel,
	})
	if err != nil {
		logrus.WithError(err).Fatal("initializing engine")
	}

	cleanupTerminal := enableSingleView()
	defer cleanupTerminal()

	snapshots, unsubscribe := eng.Store().Subscribe(1)
	defer unsubscribe()

	go func() { _ = eng.Run(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapshots:
			render(eng, snap, cfg, filter)
		}
	}
}

func render(eng *engine.Engine, snap types.Snapshot, cfg config.Config, filter string) {
	var buf bytes.Buffer
	buf.WriteString(ui.Banner())
	fmt.Fprintf(&buf, "procscope (press Ctrl+C to exit)\n")
	fmt.Fprintf(&buf, "Updated: %s | Interval: %v | Snapshot #%d\n",
		snap.Taken().Format(time.RFC3339), eng.Interval(), snap.Seq())
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(&buf, "System memory: %.1f%% of %.1f GB\n", vm.UsedPercent, float64(vm.Total)/(1<<30))
	}
	fmt.Fprintf(&buf, "CPU trend: %s\n\n", sparkline(eng.Store().History()))

	rows := report.FilterRows(snap.Rows(), filter)
	if filter != "" && len(rows) == 0 {
		fmt.Fprintf(&buf, "[!] No executables matched %q\n\n", filter)
	}

	fmt.Fprintf(&buf, "[Top %d CPU]\n", cfg.TopK)
	cpuRows := report.TopByCPU(rows, cfg.TopK)
	if len(cpuRows) == 0 {
		fmt.Fprintln(&buf, "No CPU activity measured this cycle")
	} else {
		writeRowTable(&buf, cpuRows, snap.Taken())
	}

	fmt.Fprintf(&buf, "\n[Top %d Memory]\n", cfg.TopK)
	memRows := report.TopByMemory(rows, cfg.TopK)
	if len(memRows) == 0 {
		fmt.Fprintln(&buf, "No processes observed this cycle")
	} else {
		writeRowTable(&buf, memRows, snap.Taken())
	}

	fmt.Fprintf(&buf, "\n%d executables, %d processes\n", snap.Len(), snap.PIDCount())

	clearScreen()
	fmt.Print(buf.String())
}

func writeRowTable(buf *bytes.Buffer, rows []types.Row, now time.Time) {
	tw := tabwriter.NewWriter(buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINSTANCES\tCPU(%)\tMEM(MB)\tUPTIME\tSTATUS")
	for _, row := range rows {
		uptime := "-"
		if !row.OldestStart.IsZero() && now.After(row.OldestStart) {
			uptime = now.Sub(row.OldestStart).Truncate(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%d\t%.2f\t%.1f\t%s\t%s\n",
			row.Name, row.Instances, row.CPUPercent, float64(row.MemoryBytes)/(1<<20), uptime, row.Status)
	}
	tw.Flush()
}

// sparkline compresses the usage history into one line of block glyphs,
// scaled to the busiest point in the window.
func sparkline(points []store.UsagePoint) string {
	if len(points) == 0 {
		return "no data yet"
	}
	glyphs := []rune("▁▂▃▄▅▆▇█")
	var peak float64
	for _, p := range points {
		if p.CPUPercent > peak {
			peak = p.CPUPercent
		}
	}
	if peak == 0 {
		peak = 1
	}
	var b strings.Builder
	for _, p := range points {
		idx := int(p.CPUPercent / peak * float64(len(glyphs)-1))
		b.WriteRune(glyphs[idx])
	}
	return b.String()
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
}
