package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/proofmark/proofmark/internal/config"
	"github.com/proofmark/proofmark/internal/wallet"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseLevel maps a --log-level value to a slog level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newRootCmd builds the command tree. Command output goes to out and logs
// to logOut.
func newRootCmd(out, logOut io.Writer) *cobra.Command {
	var (
		configPath string
		logLevel   string
		targetDir  string
		cli        *CLI
		cfg        *config.Config
	)

	root := &cobra.Command{
		Use:           "proofmark-cli",
		Short:         "Bind circuit proofs to circuit builds through on-chain attestations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: parseLevel(logLevel)}))
			slog.SetDefault(logger)

			if configPath == "" {
				configPath = config.DefaultPaths().ConfigFile
			}
			loaded, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			if targetDir != "" {
				loaded.Circuit.TargetDir = config.ExpandPath(targetDir)
			}
			cfg = loaded
			cli = NewCLI(cfg, out, logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to TOML configuration file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&targetDir, "target-dir", "", "Circuit target directory (overrides circuit.target_dir)")

	chainCtx := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		return context.WithTimeout(cmd.Context(), time.Duration(cfg.Chain.TimeoutSeconds)*time.Second)
	}

	root.AddCommand(&cobra.Command{
		Use:   "fingerprint",
		Short: "Print the fingerprint of the circuit target directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Fingerprint()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Recover proof material attested for the local circuit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := chainCtx(cmd)
			defer cancel()
			_, err := cli.Verify(ctx)
			return err
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "attest",
		Short: "Attest the local fingerprint with the stored proof material",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := chainCtx(cmd)
			defer cancel()
			_, err := cli.Attest(ctx)
			return err
		},
	})

	var (
		schema    string
		resolver  string
		revocable bool
	)
	registerCmd := &cobra.Command{
		Use:   "register-schema",
		Short: "Register the payload schema with the schema registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if resolver != "" && !common.IsHexAddress(resolver) {
				return fmt.Errorf("invalid resolver address %q", resolver)
			}
			ctx, cancel := chainCtx(cmd)
			defer cancel()
			_, err := cli.RegisterSchema(ctx, schema, common.HexToAddress(resolver), revocable)
			return err
		},
	}
	registerCmd.Flags().StringVar(&schema, "schema", config.DefaultSchema, "Schema definition")
	registerCmd.Flags().StringVar(&resolver, "resolver", "", "Resolver contract address (default none)")
	registerCmd.Flags().BoolVar(&revocable, "revocable", true, "Whether attestations under the schema are revocable")
	root.AddCommand(registerCmd)

	root.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Compile the reference circuit and write its artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Setup()
		},
	})

	var secret string
	proveCmd := &cobra.Command{
		Use:   "prove",
		Short: "Prove knowledge of a secret and store the proof material",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Prove(secret)
		},
	}
	proveCmd.Flags().StringVar(&secret, "secret", "", "Secret whose MiMC digest becomes the public input")
	root.AddCommand(proveCmd)

	root.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Verify the stored proof material against the local circuit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Check()
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show local and agent state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Status(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "address",
		Short: "Print the attestation signing address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Address()
		},
	})

	root.AddCommand(newKeystoreCmd(out, func() *CLI { return cli }))
	return root
}

func newKeystoreCmd(out io.Writer, cli func() *CLI) *cobra.Command {
	keystoreCmd := &cobra.Command{
		Use:   "keystore",
		Short: "Manage the encrypted mnemonic keystore",
	}

	var generate bool
	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Encrypt the mnemonic from the environment into the keystore",
		Long: "Reads the mnemonic from " + config.EnvMnemonic + " (or " + config.EnvMnemonicLegacy +
			") and the passphrase from " + config.EnvKeystorePassphrase + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pass, ok := os.LookupEnv(config.EnvKeystorePassphrase)
			if !ok || pass == "" {
				return fmt.Errorf("%s must be set", config.EnvKeystorePassphrase)
			}

			mnemonic := config.Mnemonic()
			if mnemonic == "" {
				if !generate {
					return errors.New("no mnemonic in the environment; pass --generate to create one")
				}
				var err error
				if mnemonic, err = wallet.NewMnemonic(); err != nil {
					return err
				}
				fmt.Fprintf(out, "Mnemonic: %s\n", mnemonic)
				fmt.Fprintln(out, "Write it down; it is not shown again.")
			}
			return cli().KeystoreSave(mnemonic, pass)
		},
	}
	saveCmd.Flags().BoolVar(&generate, "generate", false, "Generate a new mnemonic when none is set")
	keystoreCmd.AddCommand(saveCmd)
	return keystoreCmd
}
