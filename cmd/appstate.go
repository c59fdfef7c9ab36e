package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/composablefi/grandpa-prover/prover"
)

// appState is the modifiable state of the application.
type appState struct {
	// Log is the root logger of the application.
	// Consumers are expected to store and use local copies of the logger
	// after modifying with the .With method.
	Log *zap.Logger

	Viper *viper.Viper

	HomePath string
	Debug    bool
	Config   *Config
}

// newProver dials both configured chains and wires them into a prover.
func (a *appState) newProver() (*prover.Prover, error) {
	if a.Config == nil {
		return nil, errors.New("config not initialized, run '" + appName + " config init'")
	}

	relayChain, err := prover.NewRPCChain(a.Config.RelayRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing relay chain %s: %w", a.Config.RelayRPCAddr, err)
	}
	paraChain, err := prover.NewRPCChain(a.Config.ParaRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("dialing parachain %s: %w", a.Config.ParaRPCAddr, err)
	}

	return prover.NewProver(a.Log, relayChain, paraChain, a.Config.ParaID), nil
}
