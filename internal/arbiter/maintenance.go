package arbiter

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"fourrow"

	"fourrow/internal/ai"
)

// runMaintenance is the post-request phase of the arbiter loop: turn
// timeouts are enforced on every call (spec.md §4.B step 5), while the
// three age-based reap sweeps only run once the configured cleanup
// interval has elapsed, and run concurrently via errgroup since they
// touch disjoint rows and none depends on another's result.
func (a *Arbiter) runMaintenance(ctx context.Context) error {
	now := time.Now()

	if err := a.handleTurnTimeouts(ctx, now); err != nil {
		return err
	}

	if now.Sub(a.lastReap) < a.conf.CleanupInterval {
		return nil
	}
	a.lastReap = now

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.reapGames(gctx, now) })
	g.Go(func() error { return a.reapPlayers(gctx, now) })
	g.Go(func() error { return a.reapEmotes(gctx, now) })
	return g.Wait()
}

// handleTurnTimeouts finds every non-terminal game whose current side
// has held the turn past TURN_SECONDS and substitutes an AI move, per
// spec.md §4.E's "Turn-timeout action".
func (a *Arbiter) handleTurnTimeouts(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.conf.TurnTimeout).Unix()
	stale, err := a.store.StaleTurnGames(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, g := range stale {
		board, err := fourrow.ParseBoard(g.Board)
		if err != nil {
			a.conf.Log.Printf("game %d: malformed board, skipping timeout: %v", g.ID, err)
			continue
		}

		side := fourrow.Cyan
		if g.Status == 1 {
			side = fourrow.Magenta
		}

		col, ok := ai.BestColumn(board, side, a.rng)
		if !ok {
			// No legal column: the board is full without the store
			// having recorded a draw yet. Leave it for the next tick's
			// reap rather than guessing.
			continue
		}

		status, err := board.Place(col, side)
		if err != nil {
			a.conf.Log.Printf("game %d: AI proposed illegal column %d: %v", g.ID, col, err)
			continue
		}

		turnTimeStart := g.TurnTimeStart
		if !status.Terminal() {
			turnTimeStart = now.Unix()
		}
		if err := a.store.UpdateGameState(ctx, g.ID, board.String(), int(status), turnTimeStart); err != nil {
			return err
		}
		a.emit("ai_takeover", map[string]any{"game": g.ID, "side": side.String(), "column": col})
	}
	return nil
}

// reapGames deletes both age-stale games and games with both slots
// null, per spec.md §4.E's stale-reaping bullets and invariant 3.
func (a *Arbiter) reapGames(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.conf.GameCleanupTimeout).Unix()
	n, err := a.store.DeleteStaleGames(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		a.emit("reap_games", map[string]any{"count": n})
	}

	m, err := a.store.DeleteEmptyGames(ctx)
	if err != nil {
		return err
	}
	if m > 0 {
		a.emit("reap_empty_games", map[string]any{"count": m})
	}
	return nil
}

// reapPlayers deletes unpaired players older than PLAYER_CLEANUP_TIMEOUT.
func (a *Arbiter) reapPlayers(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.conf.PlayerCleanupTimeout).Unix()
	n, err := a.store.DeleteStaleUnpairedPlayers(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		a.emit("reap_players", map[string]any{"count": n})
	}
	return nil
}

// reapEmotes deletes emotes older than GAME_CLEANUP_TIMEOUT (the same
// timeout as games, per spec.md §4.E).
func (a *Arbiter) reapEmotes(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-a.conf.GameCleanupTimeout).Unix()
	n, err := a.store.DeleteStaleEmotes(ctx, cutoff)
	if err != nil {
		return err
	}
	if n > 0 {
		a.emit("reap_emotes", map[string]any{"count": n})
	}
	return nil
}
