package arbiter

import (
	"context"

	"fourrow"

	"fourrow/internal/store"
)

// pairUp enumerates unpaired players in arrival order and matches them
// two at a time, following the original Rust source's db_handler.rs
// walk: players sharing a non-empty phrase pair only with each other;
// phrase-less players pair with phrase-less players. The earlier
// arrival of each pair is assigned cyan, with no reshuffling of pairs
// already decided earlier in the scan.
func (a *Arbiter) pairUp(ctx context.Context, now int64) error {
	unpaired, err := a.store.UnpairedPlayers(ctx)
	if err != nil {
		return err
	}

	pending := make(map[string]store.UnpairedPlayer)

	for _, p := range unpaired {
		waiting, ok := pending[p.Phrase]
		if !ok {
			pending[p.Phrase] = p
			continue
		}
		delete(pending, p.Phrase)

		board := fourrow.NewBoard().String()
		gameID, err := a.store.InsertGame(ctx, waiting.ID, p.ID, board, now)
		if err != nil {
			return err
		}
		if err := a.store.SetPlayerGame(ctx, waiting.ID, gameID); err != nil {
			return err
		}
		if err := a.store.SetPlayerGame(ctx, p.ID, gameID); err != nil {
			return err
		}
		a.emit("paired", map[string]any{
			"game": gameID, "cyan": waiting.ID, "magenta": p.ID,
		})
	}

	return nil
}
