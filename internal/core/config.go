package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shadel/ai-workflow-core/internal/storage"
	"github.com/shadel/ai-workflow-core/pkg/models"
	"github.com/spf13/viper"
)

// validPrefixPattern matches uppercase alphanumeric prefixes between 1 and 10 characters.
var validPrefixPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)

// ConfigurationManager loads and validates configuration from the
// .awcconfig file.
type ConfigurationManager interface {
	LoadGlobalConfig() (*models.GlobalConfig, error)
	ValidateConfig(cfg *models.GlobalConfig) error
}

// viperConfigManager implements ConfigurationManager using Viper for
// reading the YAML configuration file.
type viperConfigManager struct {
	// basePath is the root directory where .awcconfig resides.
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// configuration relative to basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultGlobalConfig returns a GlobalConfig populated with defaults.
func DefaultGlobalConfig() *models.GlobalConfig {
	return &models.GlobalConfig{
		RateLimitEnabled: true,
		QueueOrdering:    models.OrderingFIFO,
		RenderContext:    true,
		BackupDir:        ".awc_backups",
		TaskIDPrefix:     "TASK",
		TaskIDPadWidth:   5,
	}
}

// LoadGlobalConfig reads the .awcconfig file from the base path. If the
// file does not exist, defaults are returned.
func (cm *viperConfigManager) LoadGlobalConfig() (*models.GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	v := viper.New()
	v.SetConfigName(".awcconfig")
	v.SetConfigType("yaml")
	v.AddConfigPath(cm.basePath)

	// Set Viper defaults so missing keys fall back gracefully.
	v.SetDefault("rate_limit.enabled", cfg.RateLimitEnabled)
	v.SetDefault("queue.ordering", string(cfg.QueueOrdering))
	v.SetDefault("context.render", cfg.RenderContext)
	v.SetDefault("backup.dir", cfg.BackupDir)
	v.SetDefault("task_id.prefix", cfg.TaskIDPrefix)
	v.SetDefault("task_id.pad_width", cfg.TaskIDPadWidth)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading .awcconfig: %w", err)
	}

	cfg.RateLimitEnabled = v.GetBool("rate_limit.enabled")
	cfg.QueueOrdering = models.QueueOrdering(v.GetString("queue.ordering"))
	cfg.RenderContext = v.GetBool("context.render")
	cfg.BackupDir = v.GetString("backup.dir")
	cfg.TaskIDPrefix = v.GetString("task_id.prefix")

	// Use IsSet to distinguish "not set" (use default 5) from "explicitly set to 0".
	if v.IsSet("task_id.pad_width") {
		cfg.TaskIDPadWidth = v.GetInt("task_id.pad_width")
	}

	return cfg, nil
}

// ValidateConfig checks the configuration for invalid values and returns a
// clear error message identifying every problem.
func (cm *viperConfigManager) ValidateConfig(cfg *models.GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	var errs []string

	switch cfg.QueueOrdering {
	case models.OrderingFIFO, models.OrderingPriority:
	default:
		errs = append(errs, fmt.Sprintf(
			"queue.ordering %q is invalid, must be one of: fifo, priority",
			cfg.QueueOrdering,
		))
	}

	if cfg.TaskIDPrefix == "" {
		errs = append(errs, "task_id.prefix must not be empty")
	} else if !validPrefixPattern.MatchString(cfg.TaskIDPrefix) {
		errs = append(errs, fmt.Sprintf(
			"task_id.prefix %q is invalid, must match [A-Z0-9]{1,10}",
			cfg.TaskIDPrefix,
		))
	}

	if cfg.TaskIDPadWidth < 0 || cfg.TaskIDPadWidth > 10 {
		errs = append(errs, fmt.Sprintf(
			"task_id.pad_width %d is invalid, must be between 0 and 10",
			cfg.TaskIDPadWidth,
		))
	}

	if cfg.BackupDir == "" {
		errs = append(errs, "backup.dir must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ComparatorFor maps the configured ordering policy to a queue comparator.
func ComparatorFor(ordering models.QueueOrdering) storage.Comparator {
	if ordering == models.OrderingPriority {
		return storage.PriorityComparator
	}
	return storage.FIFOComparator
}
