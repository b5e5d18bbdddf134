package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/shiftdetect/internal/logging"
	"github.com/ppiankov/shiftdetect/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "dev"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "shiftdetect",
	Short: "shiftdetect - creative shift detection for translation scores",
	Long: `shiftdetect labels source/target pairs of a translated text as a
reproduction or a creative shift, based on semantic distance scores.

It calibrates a decision threshold and a grouping strategy against
human-annotated examples, reports precision, recall and F1 for every
candidate, and applies the best configuration to the whole score table.

Scores are produced elsewhere; shiftdetect only decides.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("shiftdetect %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.shiftdetect/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")

	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	setDefaults(model.DefaultConfig())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		viper.AddConfigPath(home + "/.shiftdetect")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// SHIFTDETECT_CALIBRATION_WORKERS overrides calibration.workers
	viper.SetEnvPrefix("SHIFTDETECT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults registers every config key so env variables resolve during Unmarshal
func setDefaults(cfg *model.Config) {
	viper.SetDefault("calibration.thresholds", cfg.Calibration.Thresholds)
	viper.SetDefault("calibration.strategies", cfg.Calibration.Strategies)
	viper.SetDefault("calibration.metrics", cfg.Calibration.Metrics)
	viper.SetDefault("calibration.workers", cfg.Calibration.Workers)

	viper.SetDefault("columns.unit_id", cfg.Columns.UnitID)
	viper.SetDefault("columns.sent_idx", cfg.Columns.SentIdx)
	viper.SetDefault("columns.src", cfg.Columns.Src)
	viper.SetDefault("columns.tgt", cfg.Columns.Tgt)
	viper.SetDefault("columns.item_score", cfg.Columns.ItemScore)
	viper.SetDefault("columns.unit_score", cfg.Columns.UnitScore)
	viper.SetDefault("columns.human_label", cfg.Columns.HumanLabel)

	viper.SetDefault("cache.enabled", cfg.Cache.Enabled)
	viper.SetDefault("cache.memory_ttl", cfg.Cache.MemoryTTL)
	viper.SetDefault("cache.disk_dir", cfg.Cache.DiskDir)
	viper.SetDefault("cache.disk_ttl", cfg.Cache.DiskTTL)

	viper.SetDefault("store.enabled", cfg.Store.Enabled)
	viper.SetDefault("store.path", cfg.Store.Path)

	viper.SetDefault("output.dir", cfg.Output.Dir)
	viper.SetDefault("output.format", cfg.Output.Format)
	viper.SetDefault("output.timestamp_layout", cfg.Output.TimestampLayout)
	viper.SetDefault("output.verbose", cfg.Output.Verbose)

	viper.SetDefault("logging.level", cfg.Logging.Level)
	viper.SetDefault("logging.format", cfg.Logging.Format)
}

// loadConfig builds the effective configuration: defaults, then config
// file, then environment, then flags bound to viper
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

func setupLogging() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return logging.Setup(cfg.Logging, os.Stderr)
}
