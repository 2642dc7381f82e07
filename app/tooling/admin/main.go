// This program performs administrative tasks against a node's ledger.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/pohchain/app/tooling/admin/commands"
	"github.com/ardanlabs/pohchain/foundation/blockchain/database"
	"github.com/ardanlabs/pohchain/foundation/blockchain/genesis"
	"github.com/ardanlabs/pohchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/pohchain/foundation/blockchain/storage/leveldb"
	"github.com/ardanlabs/pohchain/foundation/logger"
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
		GenesisPath string `conf:"default:zblock/genesis.json"`
		LedgerPath  string `conf:"default:zblock/ledger/"`
		Storage     string `conf:"default:disk"`
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
		return err
	}

	var storage database.Serializer
	switch cfg.Storage {
	case "disk":
		storage, err = disk.New(cfg.LedgerPath)
	case "leveldb":
		storage, err = leveldb.New(cfg.LedgerPath)
	default:
		err = fmt.Errorf("unknown storage %q", cfg.Storage)
	}
	if err != nil {
		return err
	}
	defer storage.Close()

	return processCommands(cfg.Args, log, gen, storage)
}

// processCommands handles the execution of the commands specified on
// the command line.
func processCommands(args conf.Args, log *zap.SugaredLogger, gen genesis.Genesis, storage database.Serializer) error {
	switch args.Num(0) {
	case "slots":
		if err := commands.Slots(storage); err != nil {
			return fmt.Errorf("listing slots: %w", err)
		}
	case "trans":
		if err := commands.Transactions(args.Num(1), storage); err != nil {
			return fmt.Errorf("getting transactions: %w", err)
		}
	case "bals":
		if err := commands.Balances(args.Num(1), log, gen, storage); err != nil {
			return fmt.Errorf("getting balances: %w", err)
		}
	default:
		fmt.Println("slots:  list the finalized slots in the ledger")
		fmt.Println("trans:  list the finalized transactions, optionally for one account")
		fmt.Println("bals:   verify the ledger and print the finalized balances, optionally for one account")
	}

	return nil
}
