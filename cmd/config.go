package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration of the prover.
type Config struct {
	// RelayRPCAddr is the websocket RPC endpoint of the relay chain.
	RelayRPCAddr string `yaml:"relay-rpc-addr" json:"relay-rpc-addr"`
	// ParaRPCAddr is the websocket RPC endpoint of the parachain.
	ParaRPCAddr string `yaml:"para-rpc-addr" json:"para-rpc-addr"`
	// ParaID is the parachain's stable numeric identifier on the relay chain.
	ParaID uint32 `yaml:"para-id" json:"para-id"`
	// Timeout bounds each query command, parsed as a duration.
	Timeout string `yaml:"timeout" json:"timeout"`
}

func defaultConfig() *Config {
	return &Config{
		RelayRPCAddr: "ws://localhost:9944",
		ParaRPCAddr:  "ws://localhost:9188",
		ParaID:       2000,
		Timeout:      "30s",
	}
}

func (c *Config) validate() error {
	if c.RelayRPCAddr == "" {
		return fmt.Errorf("relay-rpc-addr cannot be empty")
	}
	if c.ParaRPCAddr == "" {
		return fmt.Errorf("para-rpc-addr cannot be empty")
	}
	if _, err := time.ParseDuration(c.Timeout); err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

func configCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"cfg"},
		Short:   "Manage configuration file",
	}

	cmd.AddCommand(
		configShowCmd(a),
		configInitCmd(a),
	)

	return cmd
}

// Command for printing current configuration
func configShowCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "show",
		Aliases: []string{"s", "list", "l"},
		Short:   "Prints current configuration",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s config show --home %s
$ %s cfg list`, appName, defaultHome, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := configPath(a.HomePath)
			if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
				if _, err := os.Stat(a.HomePath); os.IsNotExist(err) {
					return fmt.Errorf("home path does not exist: %s", a.HomePath)
				}
				return fmt.Errorf("config does not exist: %s", cfgPath)
			}

			jsn, err := cmd.Flags().GetBool(flagJSON)
			if err != nil {
				return err
			}
			if jsn {
				out, err := json.Marshal(a.Config)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			out, err := yaml.Marshal(a.Config)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	return jsonFlag(a.Viper, cmd)
}

// Command for initializing an empty config at the --home location
func configInitCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "init",
		Aliases: []string{"i"},
		Short:   "Creates a default home directory at path defined by --home",
		Args:    withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s config init --home %s
$ %s cfg i`, appName, defaultHome, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := path.Join(a.HomePath, "config")
			cfgPath := configPath(a.HomePath)

			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists: %s", cfgPath)
			}

			if err := os.MkdirAll(cfgDir, 0755); err != nil {
				return err
			}

			out, err := yaml.Marshal(defaultConfig())
			if err != nil {
				return err
			}
			return os.WriteFile(cfgPath, out, 0600)
		},
	}
	return cmd
}

func configPath(home string) string {
	return path.Join(home, "config", "config.yaml")
}

// initConfig reads homeDir/config/config.yaml into a.Config before each
// command. A missing file is fine; commands that need the config complain
// themselves.
func initConfig(cmd *cobra.Command, a *appState) error {
	home, err := cmd.Flags().GetString(flagHome)
	if err != nil {
		return err
	}
	a.HomePath = home

	cfgPath := configPath(a.HomePath)
	if _, err := os.Stat(cfgPath); err != nil {
		return nil
	}

	a.Viper.SetConfigFile(cfgPath)
	if err := a.Viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file at %s: %w", cfgPath, err)
	}

	byt, err := os.ReadFile(cfgPath)
	if err != nil {
		return err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(byt, cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config at %s: %w", cfgPath, err)
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config at %s: %w", cfgPath, err)
	}

	a.Config = cfg
	return nil
}
