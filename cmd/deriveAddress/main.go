package main

import (
	"fmt"
	"log"
	"os"

	"github.com/Layr-Labs/zksync-multisig-go/pkg/artifacts"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/config"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/create2"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/flow"
	"github.com/Layr-Labs/zksync-multisig-go/pkg/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "derive-address",
		Usage: "Compute where a factory will deploy a two-owner account",
		Description: `Derives the account address offline from the factory address, the deployed
bytecode hash, the salt and the constructor input. Nothing is sent to a chain.

The bytecode hash is computed from the artifacts unless --bytecode-hash is given.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "factory",
				Usage:    "Factory contract address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "owner1",
				Usage:    "Owner 1 address",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "owner2",
				Usage:    "Owner 2 address",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "account-kind",
				Usage:   "Account variant: direct or proxied",
				Value:   config.AccountKindProxied.String(),
				EnvVars: []string{config.EnvAccountKind},
			},
			&cli.StringFlag{
				Name:  "implementation",
				Usage: "Implementation address (proxied accounts only)",
			},
			&cli.StringFlag{
				Name:    "salt",
				Usage:   "32-byte salt (hex)",
				Value:   common.Hash{}.Hex(),
				EnvVars: []string{config.EnvSalt},
			},
			&cli.StringFlag{
				Name:  "bytecode-hash",
				Usage: "Bytecode hash the factory deploys; computed from the artifacts when empty",
			},
			&cli.StringFlag{
				Name:    "artifacts-dir",
				Usage:   "Directory containing the compiled contract artifacts",
				Value:   config.DefaultArtifactsDirectory,
				EnvVars: []string{config.EnvArtifactsDir},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Action: runDerive,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func parseAddress(c *cli.Context, name string) (common.Address, error) {
	value := c.String(name)
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s address %q", name, value)
	}
	return common.HexToAddress(value), nil
}

func runDerive(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	kind, err := config.ParseAccountKind(c.String("account-kind"))
	if err != nil {
		return err
	}

	params := &flow.AccountParams{Kind: kind}
	if params.Factory, err = parseAddress(c, "factory"); err != nil {
		return err
	}
	if params.Owner1, err = parseAddress(c, "owner1"); err != nil {
		return err
	}
	if params.Owner2, err = parseAddress(c, "owner2"); err != nil {
		return err
	}
	if kind == config.AccountKindProxied {
		if params.Implementation, err = parseAddress(c, "implementation"); err != nil {
			return err
		}
	}

	salt := c.String("salt")
	if len(common.FromHex(salt)) != common.HashLength {
		return fmt.Errorf("salt must be 32 bytes of hex, got %q", salt)
	}
	params.Salt = common.HexToHash(salt)

	names := config.DefaultArtifactNames(kind)
	var loader artifacts.ILoader
	needArtifacts := kind == config.AccountKindProxied || c.String("bytecode-hash") == ""
	if needArtifacts {
		if loader, err = artifacts.NewFileLoader(c.String("artifacts-dir")); err != nil {
			return fmt.Errorf("failed to open artifacts: %w", err)
		}
	}

	if kind == config.AccountKindProxied {
		account, err := loader.LoadArtifact(names.Account)
		if err != nil {
			return err
		}
		params.AccountABI = account.ABI
	}

	if h := c.String("bytecode-hash"); h != "" {
		if len(common.FromHex(h)) != common.HashLength {
			return fmt.Errorf("bytecode hash must be 32 bytes of hex, got %q", h)
		}
		params.BytecodeHash = common.HexToHash(h)
	} else {
		deployed := names.Account
		if kind == config.AccountKindProxied {
			deployed = names.Proxy
		}
		artifact, err := loader.LoadArtifact(deployed)
		if err != nil {
			return err
		}
		if params.BytecodeHash, err = create2.HashBytecode(artifact.Bytecode); err != nil {
			return fmt.Errorf("failed to hash %s bytecode: %w", deployed, err)
		}
	}

	addr, err := flow.DeriveAccountAddress(params)
	if err != nil {
		return err
	}

	l.Sugar().Debugw("Derived account address",
		"accountKind", kind.String(),
		"factory", params.Factory.String(),
		"bytecodeHash", params.BytecodeHash.Hex(),
		"salt", params.Salt.Hex(),
	)
	fmt.Println(addr.String())
	return nil
}
