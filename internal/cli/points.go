package cli

import (
	"fmt"
	"strconv"

	"assessment-service/internal/config"
	"assessment-service/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewPointsCmd groups balance administration commands.
func NewPointsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "points",
		Short: "Manage learners' grading point balances",
	}
	cmd.AddCommand(newPointsGrantCmd(configPath), newPointsBalanceCmd(configPath))
	return cmd
}

func newPointsGrantCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Credit points to a learner through the configured ledger",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}
			cfg, ledger, closeFn, err := openLedger(cmd, *configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			balance, err := ledger.Credit(cmd.Context(), args[0], amount)
			if err != nil {
				return err
			}
			logger.Log.Info("points granted",
				zap.String("user_id", args[0]),
				zap.Int64("amount", amount),
				zap.Int64("balance", balance),
				zap.String("ledger", cfg.LedgerBackend()))
			fmt.Fprintf(cmd.OutOrStdout(), "%s balance: %d\n", args[0], balance)
			return nil
		},
	}
}

func newPointsBalanceCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <user-id>",
		Short: "Print a learner's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, ledger, closeFn, err := openLedger(cmd, *configPath)
			if err != nil {
				return err
			}
			defer closeFn()

			balance, err := ledger.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s balance: %d\n", args[0], balance)
			return nil
		},
	}
}

// openLedger connects to the configured persistent ledger. The in-memory
// ledger lives only inside a running server, so it is rejected here.
func openLedger(cmd *cobra.Command, configPath string) (config.Config, pointsLedger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	if cfg.LedgerBackend() == config.LedgerMemory {
		return cfg, nil, nil, fmt.Errorf("points commands need a redis or postgres ledger")
	}
	log := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	store, err := openBackends(cmd.Context(), cfg, log)
	if err != nil {
		return cfg, nil, nil, err
	}
	return cfg, store.ledger, func() {
		store.Close()
		_ = log.Sync()
	}, nil
}
