package main

import (
	"bytes"
	"testing"

	"rtsp-kiosk/internal/platform/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigCommand_prints_effective_yaml(t *testing.T) {
	testChdir(t, t.TempDir())
	t.Setenv("KIOSK_ENGINE", "sim")
	v = viper.New()
	configFile = ""

	root := rootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"config", "--endpoint", "rtsp://10.0.0.5/live"})
	require.NoError(t, root.Execute())

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &cfg))
	assert.Equal(t, "rtsp://10.0.0.5/live", cfg.Endpoint, "flag wins")
	assert.Equal(t, "sim", cfg.Engine, "env applies")
	assert.Equal(t, ":8080", cfg.HTTPAddr, "default kept")
}

func TestConfigCommand_invalid(t *testing.T) {
	testChdir(t, t.TempDir())
	v = viper.New()
	configFile = ""

	root := rootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"config", "--engine", "vlc"})
	assert.Error(t, root.Execute())
}

func TestRootCommand_binds_persistent_flags(t *testing.T) {
	v = viper.New()

	var root *cobra.Command
	require.NotPanics(t, func() { root = rootCommand() })
	require.NoError(t, root.PersistentFlags().Set("http-addr", ":9090"))
	require.NoError(t, root.PersistentFlags().Set("log-level", "debug"))

	assert.Equal(t, ":9090", v.GetString("http_addr"))
	assert.Equal(t, "debug", v.GetString("log_level"))
}
