/*

This file manages the persistent global cycle counter.
Each operator cycle takes the next number so snapshots stay ordered across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// GetCurrentCycleNumber returns the number of the last cycle started.
func GetCurrentCycleNumber(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var currentCycle int
	err := DB.QueryRowContext(ctx, `SELECT current_cycle FROM cycle_counter WHERE id = 1;`).Scan(&currentCycle)
	if errors.Is(err, sql.ErrNoRows) {
		log.Warn().Msg("No cycle counter row found, treating as 0")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}
	return currentCycle, nil
}

// IncrementCycleNumber increments the cycle counter and returns the new value
func IncrementCycleNumber(ctx context.Context) (int, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	var newCycle int
	err := DB.QueryRowContext(ctx, `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle;`).Scan(&newCycle)
	if err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}

	log.Debug().Int("newCycle", newCycle).Msg("Incremented cycle counter")
	return newCycle, nil
}

// ResetCycleNumber sets the counter to cycleNumber (maintenance only).
func ResetCycleNumber(ctx context.Context, cycleNumber int) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if cycleNumber < 0 {
		return fmt.Errorf("cycle number cannot be negative: %d", cycleNumber)
	}

	result, err := DB.ExecContext(ctx, `
		UPDATE cycle_counter
		SET current_cycle = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1;`, cycleNumber)
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", cycleNumber, err)
	}
	if n, err := result.RowsAffected(); err != nil || n == 0 {
		return fmt.Errorf("no rows updated when resetting cycle number")
	}

	log.Warn().Int("cycleNumber", cycleNumber).Msg("Reset cycle counter")
	return nil
}
