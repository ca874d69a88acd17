package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/topocrawl/topocrawl/internal/auth"
	"github.com/topocrawl/topocrawl/internal/config"
	"github.com/topocrawl/topocrawl/internal/crawler"
	"github.com/topocrawl/topocrawl/internal/credentials"
	"github.com/topocrawl/topocrawl/internal/probe"
	"github.com/topocrawl/topocrawl/internal/templates"
	"github.com/topocrawl/topocrawl/internal/transport"
)

// crawlOutput is the JSON shape of a one-shot crawl, matching what the
// server's result endpoint returns.
type crawlOutput struct {
	RunID       uuid.UUID          `json:"run_id"`
	Seeds       []string           `json:"seeds"`
	MaxHops     int                `json:"max_hops"`
	Devices     []*crawler.Device  `json:"devices"`
	Edges       []crawler.Edge     `json:"edges"`
	Failures    []crawler.Failure  `json:"failures"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

func runCrawl(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := newLogger(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := templates.NewRegistry(logger)
	if err := registry.Load(ctx, cfg.Templates.Directory); err != nil {
		fatal(logger, "Failed to load parse templates", err)
	}

	// Sealed credential fields need the encryption key; plaintext files work
	// without one.
	var decrypter credentials.Decrypter
	if cfg.Auth.EncryptionKey != "" {
		cipher, err := auth.NewCipher(cfg.Auth.EncryptionKey)
		if err != nil {
			fatal(logger, "Invalid encryption key", err)
		}
		decrypter = cipher
	}
	credStore, err := credentials.NewService(decrypter).LoadFile(cfg.Credentials.File)
	if err != nil {
		fatal(logger, "Failed to load credentials", err)
	}

	prober := probe.New(probe.Config{
		ICMPEnabled: cfg.Probe.ICMPEnabled,
		Privileged:  cfg.Probe.Privileged,
		Packets:     cfg.Probe.Packets,
		Port:        cfg.Transport.Port,
		Timeout:     cfg.Probe.GetTimeout(),
	}, logger)

	var client transport.Client
	switch strings.ToLower(cfg.Transport.Kind) {
	case "winrm":
		client = transport.NewWinRMClient(cfg.Transport.Port, cfg.Transport.UseHTTPS, cfg.Transport.Domain, cfg.Crawl.GetConnectTimeout(), logger)
	default:
		client = transport.NewSSHClient(cfg.Transport.Port, cfg.Crawl.GetConnectTimeout(), logger)
	}

	var identifier crawler.Identifier
	if cfg.SNMP.Enabled {
		identifier = probe.NewSNMPIdentifier(probe.SNMPConfig{
			Enabled:   true,
			Port:      cfg.SNMP.Port,
			Community: cfg.SNMP.Community,
			Timeout:   cfg.SNMP.GetTimeout(),
		})
	}

	engine := crawler.NewEngine(prober, client, credStore, registry, identifier, crawler.Options{
		MaxHops:        cfg.Crawl.MaxHops,
		CommandTimeout: cfg.Crawl.GetCommandTimeout(),
		Commands:       cfg.Crawl.Commands,
		Preference:     cfg.Crawl.ProtocolPreference,
	}, logger)

	observe := func(ev crawler.ProgressEvent) {
		switch ev.Status {
		case crawler.StatusVisited:
			logger.Info("Device mapped", "device", ev.DeviceID, "hop", ev.Hop)
		case crawler.StatusUnreachable, crawler.StatusFailed:
			logger.Warn("Device skipped", "device", ev.DeviceID, "status", ev.Status, "detail", ev.Detail)
		default:
			logger.Debug("Crawl progress", "device", ev.DeviceID, "status", ev.Status, "hop", ev.Hop)
		}
	}

	logger.Info("Starting crawl",
		"seeds", strings.Join(seeds, ","),
		"max_hops", cfg.Crawl.MaxHops,
		"transport", cfg.Transport.Kind,
	)

	result, err := engine.Run(ctx, uuid.Nil, crawler.Request{Seeds: seeds}, observe)
	if err != nil {
		if result == nil {
			fatal(logger, "Crawl failed", err)
		}
		logger.Warn("Crawl interrupted, printing partial result", "error", err)
	}

	if err := renderResult(os.Stdout, result, outputFormat); err != nil {
		fatal(logger, "Failed to render result", err)
	}
}

// applyRunFlags overlays explicit command line flags on the loaded
// configuration. Unset flags leave the file and default values alone.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("max-hops") {
		cfg.Crawl.MaxHops = maxHops
	}
	if flags.Changed("transport") {
		cfg.Transport.Kind = transportKind
	}
	if flags.Changed("port") {
		cfg.Transport.Port = transportPort
	}
	if flags.Changed("connect-timeout-ms") {
		cfg.Crawl.ConnectTimeoutMS = connectTimeoutMS
	}
	if flags.Changed("command-timeout-ms") {
		cfg.Crawl.CommandTimeoutMS = commandTimeoutMS
	}
	if len(crawlCommands) > 0 {
		cfg.Crawl.Commands = crawlCommands
	}
	if credsFile != "" {
		cfg.Credentials.File = credsFile
	}
	if templatesDir != "" {
		cfg.Templates.Directory = templatesDir
	}
	if snmpCommunity != "" {
		cfg.SNMP.Enabled = true
		cfg.SNMP.Community = snmpCommunity
	}
	if noICMP {
		cfg.Probe.ICMPEnabled = false
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
}

func renderResult(w io.Writer, result *crawler.Result, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(crawlOutput{
			RunID:       result.RunID,
			Seeds:       result.Seeds,
			MaxHops:     result.MaxHops,
			Devices:     result.All(),
			Edges:       result.Edges,
			Failures:    result.Failures,
			StartedAt:   result.StartedAt,
			CompletedAt: result.CompletedAt,
		})
	case "table":
		return renderTable(w, result)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderTable(w io.Writer, result *crawler.Result) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DEVICE\tHOSTNAME\tPLATFORM\tADDRESS\tHOP\tSTATUS\tVIA")
	for _, d := range result.All() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			d.ID, d.Hostname, d.Platform, d.MgmtAddr, d.Hop, d.Status, d.DiscoveredVia)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(result.Edges) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LINK\tLOCAL IF\tREMOTE IF\tPROTOCOLS")
		for _, e := range result.Edges {
			fmt.Fprintf(tw, "%s > %s\t%s\t%s\t%s\n",
				e.LocalID, e.RemoteID, e.LocalInterface, e.RemoteInterface, strings.Join(e.Protocols, ","))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(result.Failures) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "FAILED DEVICE\tKIND\tDETAIL")
		for _, f := range result.Failures {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", f.DeviceID, f.Kind, f.Detail)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "\n%d devices, %d links, %d failures in %s\n",
		len(result.Devices), len(result.Edges), len(result.Failures),
		result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond))
	return nil
}
