//go:build darwin

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/synheart-ai/synheart-wear-go/internal/device/goble"
	"github.com/synheart-ai/synheart-wear-go/pkg/config"
	"github.com/synheart-ai/synheart-wear-go/pkg/provider"
	"github.com/synheart-ai/synheart-wear-go/pkg/wear"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for heart rate monitors",
	Long: `Scan for Bluetooth Low Energy heart rate monitors in the vicinity.

Only devices advertising the standard Heart Rate Service are shown, with
their names, addresses and signal strength. Use the address with the
stream command to connect.`,
	RunE: runScan,
}

var (
	scanDuration   time.Duration
	scanFormat     string
	scanNamePrefix string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (default from config, 10s)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringVarP(&scanNamePrefix, "name", "n", "", "Only show devices whose name starts with this prefix")
}

func runScan(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	configLevel := ""
	if configPath != "" {
		configLevel = cfg.LogLevel
	}
	logger, err := configureLogger(cmd, configLevel)
	if err != nil {
		return err
	}

	if scanDuration > 0 {
		cfg.ScanTimeout = scanDuration
	}
	if scanFormat != "" {
		cfg.OutputFormat = scanFormat
	}
	if scanNamePrefix != "" {
		cfg.NamePrefix = scanNamePrefix
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport, err := goble.NewTransport(logger)
	if err != nil {
		return err
	}
	p := provider.New(transport, logger)
	defer p.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	if isTerminal(os.Stdout) && cfg.OutputFormat == "table" {
		fmt.Printf("Scanning for heart rate monitors (%s)...\n", cfg.ScanTimeout)
	}

	devices, err := p.Scan(ctx, cfg.ScanTimeout, cfg.NamePrefix)
	if err != nil {
		return err
	}

	if cfg.OutputFormat == "json" {
		return displayDevicesJSON(os.Stdout, devices)
	}
	return displayDevicesTable(os.Stdout, devices)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func displayDevicesTable(out io.Writer, devices []wear.ScannedDevice) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No heart rate monitors discovered")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI")
	fmt.Fprintln(w, strings.Repeat("-", 50))

	strong := color.New(color.FgGreen)
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}
		rssi := fmt.Sprintf("%d dBm", d.RSSI)
		if d.RSSI > -60 && isTerminal(os.Stdout) {
			rssi = strong.Sprint(rssi)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, d.ID, rssi)
	}
	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []wear.ScannedDevice) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
