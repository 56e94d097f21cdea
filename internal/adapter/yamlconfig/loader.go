package yamlconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"bytemomo/narwhal/internal/config"
	"bytemomo/narwhal/internal/domain"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a campaign file, fills defaults, overlays the environment
// and resolves a relative items_file against the campaign directory.
func LoadConfig(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw config.Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse campaign: %w", err)
	}

	cfg := raw.Merge(config.Default())
	config.ApplyEnv(&cfg)

	if cfg.Campaign.ItemsFile != "" {
		itemsPath := cfg.Campaign.ItemsFile
		if !filepath.IsAbs(itemsPath) {
			itemsPath = filepath.Join(filepath.Dir(path), itemsPath)
		}
		items, err := LoadWorkItems(itemsPath)
		if err != nil {
			return nil, fmt.Errorf("load items file: %w", err)
		}
		cfg.Campaign.Items = append(cfg.Campaign.Items, items...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid campaign %s: %w", path, err)
	}
	return &cfg, nil
}

// LoadWorkItems reads a static list of work items for offline campaigns.
func LoadWorkItems(path string) ([]domain.WorkItem, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []domain.WorkItem
	if err := yaml.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("failed to parse items: %w", err)
	}
	for i, it := range items {
		if it.Code == "" {
			return nil, fmt.Errorf("item %d: code is required", i)
		}
	}
	return items, nil
}
