package main

import (
	"os"

	"rtsp-kiosk/internal/platform/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string
	v          = viper.New()
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kiosk",
		Short: "Keep an RTSP stream on screen with an idle clock overlay",
		Long: `kiosk plays a single RTSP stream full screen and reconnects it whenever
it stops or ends. Touches reset an on-screen idle clock. Host lifecycle
signals and pointer input are accepted over HTTP.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default: ./kiosk.yaml or /etc/rtsp-kiosk/kiosk.yaml)")
	flags.StringP("endpoint", "e", "", "RTSP stream URL")
	flags.String("http-addr", "", "Control and metrics listen address")
	flags.String("engine", "", "Playback engine: gst or sim")
	flags.String("log-level", "", "Log level: debug, info, warn, error")

	for key, name := range map[string]string{
		"endpoint":  "endpoint",
		"http_addr": "http-addr",
		"engine":    "engine",
		"log_level": "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	cmd.AddCommand(serveCommand(), configCommand())
	return cmd
}

// loadConfig layers .env, the config file, KIOSK_* variables and flags.
func loadConfig() (*config.Config, error) {
	// A missing .env is fine.
	_ = config.LoadEnv()
	return config.Load(v, configFile)
}
