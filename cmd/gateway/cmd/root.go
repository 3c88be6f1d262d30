package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/austindbirch/prestus_bff/internal/config"
)

var (
	cfgFile string
	v       = config.NewViper()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Prestus BFF gateway - single HTTP surface over jobs, bookings, notifications and payments",
	Long: `gateway fronts the jobs catalog, the bookings store, the notification
sender and the payment processor. It forwards single-resource calls,
aggregates the dashboard view and runs the booking creation workflow.

Every setting can be given as a flag, an environment variable
(e.g. JOBS_SERVICE_URL, TRIGGER_PAYMENT) or a config file entry.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("port", "3000", "HTTP listen port")
	rootCmd.PersistentFlags().String("grpc-port", "", "gRPC health listen port (empty disables)")
	rootCmd.PersistentFlags().Bool("trigger-payment", false, "call the payment processor when a booking is created")

	bindFlag(config.KeyPort, "port")
	bindFlag(config.KeyGRPCPort, "grpc-port")
	bindFlag(config.KeyTriggerPayment, "trigger-payment")
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

// initConfig reads in the config file if one was given. Environment variables
// are already enabled on v and take precedence over file values.
func initConfig() {
	if cfgFile == "" {
		return
	}
	v.SetConfigFile(cfgFile)
	cobra.CheckErr(v.ReadInConfig())
	fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())
}
