package main

import (
	"fmt"
	"io"
	"strings"

	"bytemomo/narwhal/internal/adapter/challengeapi"
	"bytemomo/narwhal/internal/adapter/yamlconfig"
	"bytemomo/narwhal/internal/domain"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the challenges of a campaign",
	Long: `List the challenges a campaign would run, marking the ones already
solved. The challenge API is queried when no items are configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := yamlconfig.LoadConfig(configPath)
		if err != nil {
			return err
		}
		items := cfg.Campaign.Items
		if len(items) == 0 {
			api := challengeapi.New(cfg.API.BaseURL, cfg.API.Key, cfg.API.Timeout)
			if items, err = api.ListWorkItems(cmd.Context()); err != nil {
				return fmt.Errorf("list work items: %w", err)
			}
		}
		printItems(cmd.OutOrStdout(), items)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to campaign YAML file (required)")
	_ = listCmd.MarkFlagRequired("config")
}

func printItems(w io.Writer, items []domain.WorkItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No challenges found")
		return
	}

	solved := color.New(color.FgGreen).SprintFunc()
	pending := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "Found %d challenge(s):\n", len(items))
	for _, it := range items {
		state := pending("pending")
		if it.Solved {
			state = solved("solved")
		}
		fmt.Fprintf(w, "  %-24s %-8s %5d pts  %-22s %s\n",
			it.Code, it.Difficulty, it.Points, endpoints(it.TargetInfo), state)
	}
}

func endpoints(t domain.TargetInfo) string {
	if t.IP == "" {
		return "-"
	}
	if len(t.Ports) == 0 {
		return t.IP
	}
	ports := make([]string, len(t.Ports))
	for i, p := range t.Ports {
		ports[i] = fmt.Sprint(p)
	}
	return t.IP + ":" + strings.Join(ports, ",")
}
