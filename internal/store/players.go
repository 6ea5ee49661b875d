package store

import "context"

// PlayerExists reports whether a player row with this id is present.
func (s *Store) PlayerExists(ctx context.Context, id uint32) (bool, error) {
	var one int
	err := s.queries["select-player-exists"].QueryRowContext(ctx, id).Scan(&one)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// PlayerCount returns the number of live player rows, used to enforce
// spec.md invariant 7 (the configured player cap).
func (s *Store) PlayerCount(ctx context.Context) (int, error) {
	var n int
	err := s.queries["select-player-count"].QueryRowContext(ctx).Scan(&n)
	return n, err
}

// InsertPlayer draws a fresh unique id and inserts a new, unpaired
// player row with the given optional phrase.
func (s *Store) InsertPlayer(ctx context.Context, phrase string, now int64) (uint32, error) {
	id, err := randomID(ctx, s.PlayerExists)
	if err != nil {
		return 0, err
	}
	var ph any
	if phrase != "" {
		ph = phrase
	}
	if _, err := s.commands["insert-player"].ExecContext(ctx, id, now, ph); err != nil {
		return 0, err
	}
	return id, nil
}

// PlayerGameID returns the game id a player is linked to, or 0 if the
// player is unpaired.
func (s *Store) PlayerGameID(ctx context.Context, id uint32) (uint32, error) {
	var gameID *uint32
	err := s.queries["select-player-game"].QueryRowContext(ctx, id).Scan(&gameID)
	if err != nil {
		return 0, err
	}
	if gameID == nil {
		return 0, nil
	}
	return *gameID, nil
}

// UnpairedPlayer is a row from the unpaired-players scan used by the
// pair-up pass, in arrival order.
type UnpairedPlayer struct {
	ID        uint32
	Phrase    string
	DateAdded int64
}

// UnpairedPlayers lists every player with no game, oldest first.
func (s *Store) UnpairedPlayers(ctx context.Context) ([]UnpairedPlayer, error) {
	rows, err := s.queries["select-unpaired-players"].QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UnpairedPlayer
	for rows.Next() {
		var (
			p      UnpairedPlayer
			phrase *string
		)
		if err := rows.Scan(&p.ID, &phrase, &p.DateAdded); err != nil {
			return nil, err
		}
		if phrase != nil {
			p.Phrase = *phrase
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetPlayerGame links (or unlinks, with gameID == 0) a player to a game.
func (s *Store) SetPlayerGame(ctx context.Context, playerID, gameID uint32) error {
	var g any
	if gameID != 0 {
		g = gameID
	}
	_, err := s.commands["update-player-game"].ExecContext(ctx, g, playerID)
	return err
}

// DeletePlayer removes a player row, reporting whether one was removed.
// Deleting a player only nullifies its slot in any linked game (the
// games table's foreign keys are declared ON DELETE SET NULL); the game
// row itself survives, per spec.md invariant 4.
func (s *Store) DeletePlayer(ctx context.Context, id uint32) (bool, error) {
	res, err := s.commands["delete-player"].ExecContext(ctx, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteStaleUnpairedPlayers removes unpaired players added before cutoff.
func (s *Store) DeleteStaleUnpairedPlayers(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.commands["delete-old-unpaired-players"].ExecContext(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
