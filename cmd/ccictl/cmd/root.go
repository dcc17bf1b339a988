package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile    string
	deviceName string
	verbose    bool

	logger *zap.Logger
)

// rootCmd is the base command for ccictl.
var rootCmd = &cobra.Command{
	Use:   "ccictl",
	Short: "ccictl drives a CCI endpoint for smoke-testing and demos",
	Long: `ccictl is an operator-facing CLI over the cci/ and client/ packages.
It ships the demos the reference corpus keeps as standalone examples —
echo client/server, an RMA write with a completion message, a device
listing/switch probe — plus a config-registry check, all as subcommands
instead of separate main()s.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		deviceName = viper.GetString("device")
		cfg := zap.NewDevelopmentConfig()
		if !verbose {
			cfg.Level.SetLevel(zap.InfoLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		logger = l
		return nil
	},
}

// Execute runs the root command, printing any error to stderr.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ccictl:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "CCI_CONFIG override (device registry INI file)")
	rootCmd.PersistentFlags().StringVar(&deviceName, "device", "", "device name to use (default: the device marked default, else the highest-priority device; env CCICTL_DEVICE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("CCICTL")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("device", rootCmd.PersistentFlags().Lookup("device"))

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(echoServerCmd)
	rootCmd.AddCommand(echoClientCmd)
	rootCmd.AddCommand(rmaDemoCmd)
	rootCmd.AddCommand(deviceSwitchCmd)
}

// applyConfigFile points CCI_CONFIG at --config for the duration of the
// process, if given; internal/config.Load always reads from the
// environment variable per spec.md §6.
func applyConfigFile() error {
	if cfgFile == "" {
		return nil
	}
	if _, err := os.Stat(cfgFile); err != nil {
		return fmt.Errorf("--config %q: %w", cfgFile, err)
	}
	return os.Setenv("CCI_CONFIG", cfgFile)
}
