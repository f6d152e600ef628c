package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yourorg/veilpay/circuits"
	"github.com/yourorg/veilpay/config"
	"github.com/yourorg/veilpay/internal/keys"
	"github.com/yourorg/veilpay/internal/ledger"
	"github.com/yourorg/veilpay/internal/prover"
	"github.com/yourorg/veilpay/internal/scanner"
	"github.com/yourorg/veilpay/internal/txbuilder"
	"github.com/yourorg/veilpay/internal/wallet"
	"github.com/yourorg/veilpay/pkg/logger"
)

// app wires the session: one wallet, one derivation engine, one ledger
// client, one builder. Constructed per invocation.
type app struct {
	cfg   *config.Config
	log   zerolog.Logger
	cli   ledger.Client
	eng   *keys.Engine
	orch  *prover.Orchestrator
	scan  *scanner.Scanner
	build *txbuilder.Builder
}

func newApp(ctx context.Context, cfgPath, ledgerMode string) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if ledgerMode != "" {
		cfg.Ledger.Mode = ledgerMode
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	vocab, err := cfg.Shield.Amounts()
	if err != nil {
		return nil, err
	}
	mint, err := cfg.Ledger.MintBytes()
	if err != nil {
		return nil, err
	}

	var cli ledger.Client
	switch cfg.Ledger.Mode {
	case "mem":
		cli = ledger.NewMemory(mint)
	case "rpc":
		rpcCli, err := ledger.DialRPC(ctx, cfg.Ledger.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial ledger rpc: %w", err)
		}
		cli = rpcCli
	default:
		return nil, fmt.Errorf("unknown ledger mode %q", cfg.Ledger.Mode)
	}

	keyHex := os.Getenv("VEIL_WALLET_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("VEIL_WALLET_KEY env var is required")
	}
	signer, err := wallet.NewLocal(keyHex)
	if err != nil {
		return nil, fmt.Errorf("load wallet key: %w", err)
	}

	eng := keys.NewEngine(signer, cfg.Shield.SigningMessage)
	orch := prover.New(cfg.Prover.ArtifactDir, log)
	scan := scanner.New(cli, vocab, cfg.Shield.MaxSlotIndex, log)
	build := txbuilder.New(cli, eng, signer, orch, scan, vocab, log)
	build.MaxSlotAttempts = cfg.Shield.MaxSlotAttempts

	return &app{cfg: cfg, log: log, cli: cli, eng: eng, orch: orch, scan: scan, build: build}, nil
}

func parseAmount(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", s, err)
	}
	return v, nil
}

func parseAddress(s string) (ledger.Address, error) {
	var out ledger.Address
	raw, err := hexutil.Decode(s)
	if err != nil {
		return out, fmt.Errorf("address %q: %w", s, err)
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("address %q: want 32 bytes, got %d", s, len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

func parseRequestID(s string) ([16]byte, error) {
	var out [16]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return out, fmt.Errorf("request id %q: want 16 hex bytes", s)
	}
	copy(out[:], raw)
	return out, nil
}

func main() {
	var cfgPath, ledgerMode string

	root := &cobra.Command{
		Use:           "veilpay",
		Short:         "Shielded transfers over a public ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path")
	root.PersistentFlags().StringVar(&ledgerMode, "ledger", "", "ledger mode override: rpc or mem")

	root.AddCommand(&cobra.Command{
		Use:   "deposit <amount>",
		Short: "Shield an amount into a fresh commitment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfgPath, ledgerMode)
			if err != nil {
				return err
			}
			rcpt, err := a.build.Deposit(cmd.Context(), amount)
			if err != nil {
				return err
			}
			fmt.Printf("deposited %d\ncommitment %s\ntx %s\n",
				amount, hexutil.Encode(rcpt.Commitment[:]), rcpt.Signature.Hex())
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "withdraw <amount> <recipient>",
		Short: "Withdraw an amount to a public address",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			recipient, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfgPath, ledgerMode)
			if err != nil {
				return err
			}
			rcpt, err := a.build.Withdraw(cmd.Context(), amount, recipient)
			if err != nil {
				return err
			}
			fmt.Printf("withdrew %d to %s\ntx %s\n", amount, recipient.Hex(), rcpt.Signature.Hex())
			if rcpt.ChangeCommitment != nil {
				fmt.Printf("change %d under %s\n", rcpt.ChangeAmount, hexutil.Encode(rcpt.ChangeCommitment[:]))
			}
			return nil
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "balance",
		Short: "Scan the ledger and print the shielded balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfgPath, ledgerMode)
			if err != nil {
				return err
			}
			view, err := a.scan.Scan(cmd.Context(), a.eng)
			if err != nil {
				return err
			}
			for _, r := range view.Records {
				state := "unspent"
				if r.Spent {
					state = "spent"
				}
				fmt.Printf("%s  %12d  %s\n", r.Address.Hex(), r.Amount, state)
			}
			fmt.Printf("total %d\n", view.Total)
			return nil
		},
	})

	request := &cobra.Command{
		Use:   "request",
		Short: "Manage payment requests",
	}
	var expiresAt int64
	create := &cobra.Command{
		Use:   "create <amount> <payee>",
		Short: "Open a payment request",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := parseAmount(args[0])
			if err != nil {
				return err
			}
			payee, err := parseAddress(args[1])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfgPath, ledgerMode)
			if err != nil {
				return err
			}
			id, err := a.build.CreateRequest(cmd.Context(), amount, expiresAt, [32]byte{}, payee)
			if err != nil {
				return err
			}
			fmt.Printf("request %s\n", hex.EncodeToString(id[:]))
			return nil
		},
	}
	create.Flags().Int64Var(&expiresAt, "expires-at", 0, "unix expiry, 0 for none")
	request.AddCommand(create)

	request.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending payment request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfgPath, ledgerMode)
			if err != nil {
				return err
			}
			if err := a.build.CancelRequest(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Println("request cancelled")
			return nil
		},
	})
	root.AddCommand(request)

	root.AddCommand(&cobra.Command{
		Use:   "pay <request-id>",
		Short: "Pay a pending payment request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfgPath, ledgerMode)
			if err != nil {
				return err
			}
			rcpt, err := a.build.PayRequest(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("paid request %s\ntx %s\n", args[0], rcpt.Signature.Hex())
			return nil
		},
	})

	var kindS, proofPath, publicPath string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify a proof against its public signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			proofBytes, err := os.ReadFile(proofPath)
			if err != nil {
				return err
			}
			publicBytes, err := os.ReadFile(publicPath)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfgPath, ledgerMode)
			if err != nil {
				return err
			}
			p := &prover.Proof{Kind: circuits.Kind(kindS), Bytes: proofBytes, Public: publicBytes}
			if err := a.orch.Verify(p); err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}
			fmt.Println("proof verified")
			return nil
		},
	}
	verify.Flags().StringVar(&kindS, "kind", "", "deposit, withdraw, withdraw-with-change")
	verify.Flags().StringVar(&proofPath, "proof", "", "serialized proof file")
	verify.Flags().StringVar(&publicPath, "public", "", "public signals JSON file")
	_ = verify.MarkFlagRequired("kind")
	_ = verify.MarkFlagRequired("proof")
	_ = verify.MarkFlagRequired("public")
	root.AddCommand(verify)

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
