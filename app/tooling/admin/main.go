// This program performs administrative tasks against the chain database
// while the node is offline.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/equiforge/equiforge/app/tooling/admin/commands"
	"github.com/equiforge/equiforge/foundation/blockchain/genesis"
	"github.com/equiforge/equiforge/foundation/blockchain/mempool/selector"
	"github.com/equiforge/equiforge/foundation/blockchain/state"
	"github.com/equiforge/equiforge/foundation/blockchain/storage"
	"github.com/equiforge/equiforge/foundation/logger"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("ADMIN")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {
	cfg := struct {
		conf.Version
		Args        conf.Args
		DBPath      string `conf:"default:zblock/blocks.db"`
		GenesisPath string `conf:"default:zblock/genesis.json"`
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "copyright information here",
		},
	}

	const prefix = "ADMIN"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	gen, err := genesis.Load(cfg.GenesisPath)
	if err != nil {
		return fmt.Errorf("unable to load genesis file: %w", err)
	}

	strg, err := storage.NewPebble(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("unable to open block storage: %w", err)
	}

	st, err := state.New(state.Config{
		Genesis:        gen,
		Storage:        strg,
		SelectStrategy: selector.StrategyFeeRate,
	})
	if err != nil {
		return err
	}
	defer st.Shutdown()

	return processCommands(cfg.Args, st)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, st *state.State) error {
	switch args.Num(0) {
	case "bals":
		if err := commands.Balances(st); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	case "trans":
		if err := commands.Transactions(args, st); err != nil {
			return fmt.Errorf("getting transactions: %w", err)
		}
	case "info":
		if err := commands.Info(st); err != nil {
			return fmt.Errorf("getting chain info: %w", err)
		}
	default:
		fmt.Println("bals:  display the balance of every address with unspent outputs")
		fmt.Println("trans: display the transactions in a height range: trans [from] [to]")
		fmt.Println("info:  display the chain tip summary")
	}

	return nil
}
