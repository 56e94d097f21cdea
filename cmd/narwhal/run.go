package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bytemomo/narwhal/internal/adapter/arprecon"
	"bytemomo/narwhal/internal/adapter/challengeapi"
	"bytemomo/narwhal/internal/adapter/dnsrecon"
	"bytemomo/narwhal/internal/adapter/grpcexec"
	"bytemomo/narwhal/internal/adapter/jsonreport"
	"bytemomo/narwhal/internal/adapter/logger"
	"bytemomo/narwhal/internal/adapter/mqttsink"
	"bytemomo/narwhal/internal/adapter/nmapscan"
	"bytemomo/narwhal/internal/adapter/reasoner"
	"bytemomo/narwhal/internal/adapter/shell"
	"bytemomo/narwhal/internal/adapter/yamlconfig"
	"bytemomo/narwhal/internal/campaign"
	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"
	"bytemomo/narwhal/internal/flag"
	"bytemomo/narwhal/internal/mission"
	"bytemomo/narwhal/internal/usecase"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	outDir     string
	startNow   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a campaign",
	Long: `Run every unsolved challenge of a campaign as an isolated mission.

Challenges come from the campaign file (items or items_file) or, when none
are listed, from the challenge API. Failed missions are retried once.`,
	RunE: runCampaign,
}

func init() {
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to campaign YAML file (required)")
	runCmd.Flags().StringVar(&outDir, "out", "", "Output directory (overrides campaign setting)")
	runCmd.Flags().BoolVar(&startNow, "now", false, "Ignore the campaign start time")
	_ = runCmd.MarkFlagRequired("config")
}

func runCampaign(cmd *cobra.Command, args []string) error {
	cfg, err := yamlconfig.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if outDir != "" {
		cfg.Output.Dir = outDir
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := log.WithField("campaign", cfg.Campaign.ID)
	l.WithFields(log.Fields{
		"version": version,
		"config":  configPath,
	}).Info("narwhal starting")

	runner, cleanup, err := assemble(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer cleanup()

	var report domain.CampaignReport
	if len(cfg.Campaign.Items) > 0 {
		report, err = runner.Run(ctx, cfg.Campaign.Items)
	} else {
		report, err = runner.RunFromAPI(ctx)
	}

	printSummary(cmd.OutOrStdout(), report)

	if err != nil {
		return fmt.Errorf("campaign %s: %w", cfg.Campaign.ID, err)
	}
	if report.Counts[domain.ItemError] > 0 {
		return errIncomplete
	}
	l.Info("Campaign completed successfully")
	return nil
}

func setupLogging(cfg *config.Config) (func() error, error) {
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	file := cfg.Logging.File
	if logFile != "" {
		file = logFile
	}
	return logger.Configure(level, file, structured)
}

// assemble wires the configured adapters into a campaign runner. The
// returned cleanup releases connections opened along the way.
func assemble(ctx context.Context, cfg *config.Config, l *log.Entry) (*campaign.Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	llm, err := reasoner.New(ctx, cfg.LLM, l)
	if err != nil {
		return nil, nil, fmt.Errorf("reasoner: %w", err)
	}

	var exec domain.Executor
	switch cfg.Executor.Kind {
	case "grpc":
		client, err := grpcexec.Dial(cfg.Executor.Endpoint)
		if err != nil {
			return nil, nil, fmt.Errorf("executor: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		exec = client
	default:
		exec = shell.New(cfg.Executor, l)
	}

	var api domain.ChallengeAPI
	if cfg.API.BaseURL != "" {
		api = challengeapi.New(cfg.API.BaseURL, cfg.API.Key, cfg.API.Timeout)
	}

	var enrichers []mission.Enricher
	if cfg.Recon.Nmap.Enabled {
		enrichers = append(enrichers, nmapscan.New(cfg.Recon.Nmap, l))
	}
	if cfg.Recon.DNS.Enabled {
		enrichers = append(enrichers, dnsrecon.New(cfg.Recon.DNS, l))
	}
	if cfg.Recon.ARP.Enabled {
		enrichers = append(enrichers, arprecon.New(cfg.Recon.ARP, l))
	}

	reports := jsonreport.New(cfg.Output.Dir)
	repos := []domain.ResultRepo{reports}
	if cfg.MQTT.Broker != "" {
		sink, err := mqttsink.Connect(cfg.MQTT, cfg.Campaign.ID, l)
		if err != nil {
			l.WithError(err).Warn("Result publishing disabled")
		} else {
			closers = append(closers, sink.Close)
			repos = append(repos, sink)
		}
	}

	start, err := cfg.StartTime()
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if startNow && !start.IsZero() {
		l.WithField("start_at", cfg.Campaign.StartAt).Info("Ignoring campaign start time")
		start = time.Time{}
	}

	launcher := &usecase.MissionLauncher{
		Config:    cfg,
		Reasoner:  llm,
		Executor:  exec,
		API:       api,
		Enrichers: enrichers,
		Detector:  flag.Default(),
		Log:       l,
	}

	runner := &campaign.Runner{
		ID:          cfg.Campaign.ID,
		API:         api,
		Launcher:    launcher,
		StartAt:     start,
		MaxParallel: cfg.Campaign.MaxParallel,
		Repos:       repos,
		Writer:      reports,
		Log:         l,
	}
	return runner, cleanup, nil
}

// exitStatus maps a command error to the process exit code.
func exitStatus(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errIncomplete):
		return 2
	default:
		return 1
	}
}
