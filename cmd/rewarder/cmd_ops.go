package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/elys-network/autorewarder/internal/config"
	"github.com/elys-network/autorewarder/internal/rewarder"
	"github.com/elys-network/autorewarder/internal/simulations"
	"github.com/elys-network/autorewarder/internal/types"
)

var cmdCollect = &cobra.Command{
	Use:   "collect",
	Short: "Collect strategy rewards for the given vaults, or every registered vault",
	Args:  cobra.NoArgs,
	RunE:  runCollect,
}

var cmdDistribute = &cobra.Command{
	Use:   "distribute",
	Short: "Pay the next slice of vaults",
	Args:  cobra.NoArgs,
	RunE:  runDistribute,
}

var cmdAbandon = &cobra.Command{
	Use:   "abandon",
	Short: "Drop the running distribution cycle so the next distribute re-arms from fresh data",
	Args:  cobra.NoArgs,
	RunE:  runAbandon,
}

var cmdStatus = &cobra.Command{
	Use:   "status",
	Short: "Print the distribution state and parameters",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var cmdSimulate = &cobra.Command{
	Use:   "simulate",
	Short: "Dry-run the current or next cycle without paying anything",
	Args:  cobra.NoArgs,
	RunE:  runSimulate,
}

var flagOps struct {
	Vaults []string
	Count  int
	Batch  int
}

func init() {
	cmdCollect.Flags().StringSliceVar(&flagOps.Vaults, "vaults", nil, "Vault addresses to collect (default: all registered and, with REGISTER_ON_COLLECT, the configured ones, in batches)")
	cmdDistribute.Flags().IntVar(&flagOps.Count, "count", 0, "Maximum number of vaults to pay (default: BATCH_SIZE)")
	cmdSimulate.Flags().IntVar(&flagOps.Batch, "batch", 0, "Slice size used by the simulation (default: BATCH_SIZE)")
	cmdMain.AddCommand(cmdCollect, cmdDistribute, cmdAbandon, cmdStatus, cmdSimulate)
}

func runCollect(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var vaults []types.VaultID
	for _, v := range flagOps.Vaults {
		vaults = append(vaults, types.VaultID(v))
	}
	if len(vaults) == 0 {
		vaults = a.rewarder.CollectionTargets(config.Vaults)
	}

	if len(vaults) == 0 {
		return rewarder.ErrNoVaults
	}
	reports := make([]types.CollectReport, 0)
	for start := 0; start < len(vaults); start += config.BatchSize {
		end := min(start+config.BatchSize, len(vaults))
		report, err := a.rewarder.Collect(ctx, vaults[start:end])
		if err != nil {
			return err
		}
		reports = append(reports, report)
	}
	if err := a.checkpoint(ctx); err != nil {
		return err
	}
	return printJSON(reports)
}

func runDistribute(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	count := flagOps.Count
	if count == 0 {
		count = config.BatchSize
	}
	res, err := a.rewarder.Distribute(ctx, count)
	if err != nil {
		return err
	}
	if err := a.checkpoint(ctx); err != nil {
		return err
	}
	return printJSON(res)
}

func runAbandon(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.rewarder.AbandonCycle() {
		fmt.Println("No distribution cycle is running")
		return nil
	}
	if err := a.checkpoint(ctx); err != nil {
		return err
	}
	fmt.Println("Running distribution cycle abandoned")
	return nil
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	params := a.rewarder.Parameters()
	return printJSON(map[string]interface{}{
		"mode":                     config.RewarderMode,
		"vaults":                   a.rewarder.Vaults(),
		"distribution":             a.rewarder.DistributionState(),
		"rewards_per_day":          params.RewardsPerDay,
		"network_ratio":            params.NetworkRatio,
		"scaled_rewards_per_day":   a.rewarder.RewardsPerDay(),
		"min_cycle_period":         params.MinCyclePeriod.String(),
		"max_info_age":             params.MaxInfoAge.String(),
		"pending_strategy_rewards": a.rewarder.PendingStrategyRewardsUSD(),
	})
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	batch := flagOps.Batch
	if batch == 0 {
		batch = config.BatchSize
	}
	report, err := simulations.SimulateCycle(cmd.Context(), a.rewarder, time.Now(), batch)
	if err != nil {
		return err
	}
	return printJSON(report)
}
