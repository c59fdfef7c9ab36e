package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	rpcclienttypes "github.com/ComposableFi/go-substrate-rpc-client/v4/types"
	retry "github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/composablefi/grandpa-prover/grandpa"
)

// The prover itself never retries: a failed call aborts the whole bundle.
// Retrying is this layer's job.
var (
	rtyAttNum = uint(5)
	rtyAtt    = retry.Attempts(rtyAttNum)
	rtyDel    = retry.Delay(time.Millisecond * 400)
	rtyErr    = retry.LastErrorOnly(true)
)

func queryCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Query finality proofs and finalized parachain headers",
	}

	cmd.AddCommand(
		queryHeightsCmd(a),
		queryHeadersCmd(a),
		queryHeadersWithProofCmd(a),
	)

	return cmd
}

func queryHeightsCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heights",
		Short: "Query the latest finalized relay chain height and the parachain height committed there",
		Args:  withUsage(cobra.NoArgs),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s query heights`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.newProver()
			if err != nil {
				return err
			}

			ctx, cancel := a.queryContext(cmd)
			defer cancel()

			var paraHeight, relayHeight int64
			if err := retry.Do(func() error {
				var err error
				paraHeight, relayHeight, err = p.LatestHeights(ctx)
				return err
			}, retry.Context(ctx), rtyAtt, rtyDel, rtyErr); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "para-height: %d\nrelay-height: %d\n", paraHeight, relayHeight)
			return nil
		},
	}
	return cmd
}

func queryHeadersCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "headers latest_hash previous_hash",
		Short: "Query the finalized parachain headers committed between two relay chain blocks",
		Args:  withUsage(cobra.ExactArgs(2)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s query headers 0xlatest... 0xprevious...`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, previous, err := parseHashArgs(cmd, args)
			if err != nil {
				return err
			}

			p, err := a.newProver()
			if err != nil {
				return err
			}

			ctx, cancel := a.queryContext(cmd)
			defer cancel()

			var headers []rpcclienttypes.Header
			if err := retry.Do(func() error {
				var err error
				headers, err = p.FinalizedParachainHeadersBetween(ctx, latest, previous)
				return err
			}, retry.Context(ctx), rtyAtt, rtyDel, rtyErr, retry.OnRetry(func(n uint, err error) {
				a.Log.Info(
					"Failed to query parachain headers",
					zap.Uint("attempt", n+1),
					zap.Uint("max_attempts", rtyAttNum),
					zap.Error(err),
				)
			})); err != nil {
				return err
			}

			return printOutput(cmd, headers)
		},
	}
	return yamlFlag(a.Viper, jsonFlag(a.Viper, cmd))
}

func queryHeadersWithProofCmd(a *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "headers-with-proof latest_hash previous_hash header_numbers",
		Short: "Assemble the finality and inclusion proof bundle for the given parachain heights",
		Args:  withUsage(cobra.ExactArgs(3)),
		Example: strings.TrimSpace(fmt.Sprintf(`
$ %s query headers-with-proof 0xlatest... 0xprevious... 102,103,104`, appName)),
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, previous, err := parseHashArgs(cmd, args)
			if err != nil {
				return err
			}

			headerNumbers, err := parseBlockNumbers(cmd, args[2])
			if err != nil {
				return err
			}

			p, err := a.newProver()
			if err != nil {
				return err
			}

			ctx, cancel := a.queryContext(cmd)
			defer cancel()

			var bundle *grandpa.ParachainHeadersWithFinalityProof
			if err := retry.Do(func() error {
				var err error
				bundle, err = p.FinalizedParachainHeadersWithProof(ctx, latest, previous, headerNumbers)
				return err
			}, retry.Context(ctx), rtyAtt, rtyDel, rtyErr, retry.OnRetry(func(n uint, err error) {
				a.Log.Info(
					"Failed to assemble proof bundle",
					zap.Uint("attempt", n+1),
					zap.Uint("max_attempts", rtyAttNum),
					zap.Error(err),
				)
			})); err != nil {
				return err
			}

			return printOutput(cmd, bundle)
		},
	}
	return yamlFlag(a.Viper, jsonFlag(a.Viper, cmd))
}

// queryContext bounds a query command by the configured timeout.
func (a *appState) queryContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := 30 * time.Second
	if a.Config != nil {
		timeout = a.Config.timeout()
	}
	return context.WithTimeout(cmd.Context(), timeout)
}

func parseHashArgs(cmd *cobra.Command, args []string) (latest, previous rpcclienttypes.Hash, err error) {
	latest, err = rpcclienttypes.NewHashFromHexString(args[0])
	if err != nil {
		return latest, previous, argError(cmd, "invalid latest hash %q: %v", args[0], err)
	}
	previous, err = rpcclienttypes.NewHashFromHexString(args[1])
	if err != nil {
		return latest, previous, argError(cmd, "invalid previous hash %q: %v", args[1], err)
	}
	return latest, previous, nil
}

func parseBlockNumbers(cmd *cobra.Command, arg string) ([]rpcclienttypes.BlockNumber, error) {
	parts := strings.Split(arg, ",")
	numbers := make([]rpcclienttypes.BlockNumber, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return nil, argError(cmd, "invalid header number %q: %v", part, err)
		}
		numbers = append(numbers, rpcclienttypes.BlockNumber(n))
	}
	return numbers, nil
}

func printOutput(cmd *cobra.Command, v any) error {
	jsn, err := cmd.Flags().GetBool(flagJSON)
	if err != nil {
		return err
	}
	if jsn {
		out, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
