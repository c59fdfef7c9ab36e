package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	zaplogfmt "github.com/jsternberg/zap-logfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const appName = "grandpa-prover"

var defaultHome = os.ExpandEnv("$HOME/." + appName)

// NewRootCmd returns the root command for the prover CLI. The log parameter
// is mostly for tests; when nil a logger is built from the persistent flags.
func NewRootCmd(log *zap.Logger) *cobra.Command {
	a := &appState{
		Viper: viper.New(),
		Log:   log,
	}

	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Produces GRANDPA finality proofs for parachain headers",
		Long: strings.TrimSpace(`
Queries a relay chain and its attached parachain to assemble the finality and
inclusion proof bundles a counterparty light client consumes. Verification of
the produced proofs is the counterparty's job, not this tool's.`),
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if err := initConfig(cmd, a); err != nil {
			return err
		}
		if a.Log == nil {
			logger, err := newRootLogger(a.Viper.GetString(flagLogFormat), a.Viper.GetBool(flagDebug))
			if err != nil {
				return err
			}
			a.Log = logger
		}
		return nil
	}
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		// sync errors on stderr sinks are expected and unactionable
		_ = a.Log.Sync()
	}

	rootCmd.PersistentFlags().StringVar(&a.HomePath, flagHome, defaultHome, "set home directory")
	if err := a.Viper.BindPFlag(flagHome, rootCmd.PersistentFlags().Lookup(flagHome)); err != nil {
		panic(err)
	}
	rootCmd.PersistentFlags().String(flagLogFormat, "auto", "log output format (auto, logfmt, json, or console)")
	if err := a.Viper.BindPFlag(flagLogFormat, rootCmd.PersistentFlags().Lookup(flagLogFormat)); err != nil {
		panic(err)
	}
	rootCmd.PersistentFlags().BoolVarP(&a.Debug, flagDebug, "d", false, "debug output")
	if err := a.Viper.BindPFlag(flagDebug, rootCmd.PersistentFlags().Lookup(flagDebug)); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		configCmd(a),
		queryCmd(a),
		getVersionCmd(a),
	)

	return rootCmd
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once from main.main().
func Execute() {
	cobra.EnableCommandSorting = false

	rootCmd := NewRootCmd(nil)
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootLogger(format string, debug bool) (*zap.Logger, error) {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.LevelKey = "lvl"

	var enc zapcore.Encoder
	switch format {
	case "json":
		enc = zapcore.NewJSONEncoder(config)
	case "console":
		enc = zapcore.NewConsoleEncoder(config)
	case "logfmt", "auto":
		enc = zaplogfmt.NewEncoder(config)
	default:
		return nil, fmt.Errorf("unrecognized log format %q", format)
	}

	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	return zap.New(zapcore.NewCore(enc, os.Stderr, level)), nil
}
