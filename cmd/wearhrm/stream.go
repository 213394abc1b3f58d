//go:build darwin

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/synheart-ai/synheart-wear-go/internal/device/goble"
	"github.com/synheart-ai/synheart-wear-go/pkg/config"
	"github.com/synheart-ai/synheart-wear-go/pkg/metric"
	"github.com/synheart-ai/synheart-wear-go/pkg/provider"
	"github.com/synheart-ai/synheart-wear-go/pkg/wear"
)

// streamCmd represents the stream command
var streamCmd = &cobra.Command{
	Use:   "stream <device-address>",
	Short: "Connect to a monitor and stream heart rate samples",
	Long: `Connect to a heart rate monitor and stream live samples until
interrupted.

Each sample is printed as it arrives. With --format json every line is one
normalized metric record, suitable for piping into other tools. The
connection recovers from brief dropouts automatically; after repeated
failures the stream ends.

Examples:
  # Stream from a monitor found via scan
  wearhrm stream AA:BB:CC:DD:EE:FF

  # Machine-readable output with a session tag
  wearhrm stream AA:BB:CC:DD:EE:FF --format json --session morning-run`,
	Args: cobra.ExactArgs(1),
	RunE: runStream,
}

var (
	streamFormat    string
	streamSessionID string
	streamDuration  time.Duration
	streamNoBattery bool
)

func init() {
	streamCmd.Flags().StringVarP(&streamFormat, "format", "f", "", "Output format (table, json)")
	streamCmd.Flags().StringVar(&streamSessionID, "session", "", "Session id attached to every sample (generated if empty)")
	streamCmd.Flags().DurationVarP(&streamDuration, "duration", "d", 0, "Stop after this long (0 = until Ctrl+C)")
	streamCmd.Flags().BoolVar(&streamNoBattery, "no-battery", false, "Skip the battery level read on connect")
}

func runStream(cmd *cobra.Command, args []string) error {
	address := args[0]

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

	if streamFormat != "" {
		cfg.OutputFormat = streamFormat
	}
	if streamNoBattery {
		cfg.ReadBattery = false
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sessionID := streamSessionID
	if sessionID == "" {
		sessionID = ulid.Make().String()
	}

	cmd.SilenceUsage = true

	transport, err := goble.NewTransport(logger)
	if err != nil {
		return err
	}
	p := provider.New(transport, logger)
	defer p.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	human := cfg.OutputFormat == "table"
	if human {
		fmt.Printf("Connecting to %s...\n", address)
	}

	if err := p.Connect(ctx, address, provider.ConnectOptions{
		SessionID:   sessionID,
		ReadBattery: cfg.ReadBattery,
	}); err != nil {
		return err
	}
	defer func() { _ = p.Disconnect() }()

	if human {
		msg := "Connected. Streaming heart rate, Ctrl+C to stop."
		if level := p.BatteryLevel(); level >= 0 {
			msg = fmt.Sprintf("Connected (battery %d%%). Streaming heart rate, Ctrl+C to stop.", level)
		}
		fmt.Println(msg)
	}

	handle, samples := p.Samples()
	defer p.CancelStream(handle)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timeLimit <-chan time.Time
	if streamDuration > 0 {
		timer := time.NewTimer(streamDuration)
		defer timer.Stop()
		timeLimit = timer.C
	}

	// The sample channel stays open across reconnects; the ticker notices
	// when the provider has given up and settled idle.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	encoder := json.NewEncoder(os.Stdout)
	for {
		select {
		case <-sigCh:
			if human {
				fmt.Println("\nCtrl+C pressed, disconnecting...")
			}
			return nil
		case <-timeLimit:
			return nil
		case <-ticker.C:
			if p.State() == provider.StateIdle {
				if human {
					fmt.Println("Connection lost and not recovered, stopping.")
				}
				return nil
			}
		case sample, ok := <-samples:
			if !ok {
				return nil
			}
			if human {
				printSample(sample)
			} else if err := encoder.Encode(metric.FromHeartRateSample(sample)); err != nil {
				return err
			}
		}
	}
}

var bpmColor = color.New(color.FgRed, color.Bold)

func printSample(s wear.HeartRateSample) {
	ts := time.UnixMilli(s.TimestampMs).Format("15:04:05")
	line := fmt.Sprintf("%s  %s bpm", ts, bpmColor.Sprintf("%3d", s.BPM))
	if len(s.RRIntervalsMs) > 0 {
		rrs := make([]string, len(s.RRIntervalsMs))
		for i, rr := range s.RRIntervalsMs {
			rrs[i] = fmt.Sprintf("%.1f", rr)
		}
		line += fmt.Sprintf("  rr=[%s]ms", strings.Join(rrs, " "))
	}
	fmt.Println(line)
}
