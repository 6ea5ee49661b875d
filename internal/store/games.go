package store

import "context"

// GameExists reports whether a game row with this id is present; the
// random-id generator uses it to reject colliding game ids.
func (s *Store) GameExists(ctx context.Context, id uint32) (bool, error) {
	err := s.queries["select-game"].QueryRowContext(ctx, id).Scan(
		new(any), new(any), new(string), new(int), new(int64), new(int64))
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

// InsertGame draws a fresh unique id and creates a game row pairing the
// two given players, with a fresh empty board and cyan to move.
func (s *Store) InsertGame(ctx context.Context, cyan, magenta uint32, board string, now int64) (uint32, error) {
	id, err := randomID(ctx, s.GameExists)
	if err != nil {
		return 0, err
	}
	if _, err := s.commands["insert-game"].ExecContext(ctx,
		id, cyan, magenta, now, board, 0, now); err != nil {
		return 0, err
	}
	return id, nil
}

// GetGame loads a game row by id.
func (s *Store) GetGame(ctx context.Context, id uint32) (*Game, error) {
	var (
		g               Game
		cyan, magenta   *uint32
		turnStart, date int64
	)
	g.ID = id
	err := s.queries["select-game"].QueryRowContext(ctx, id).Scan(
		&cyan, &magenta, &g.Board, &g.Status, &turnStart, &date)
	if err != nil {
		return nil, err
	}
	if cyan != nil {
		g.CyanPlayer = *cyan
	}
	if magenta != nil {
		g.MagentaPlayer = *magenta
	}
	g.DateAdded = unixTime(date)
	g.TurnTimeStart = unixTime(turnStart)
	return &g, nil
}

// UpdateGameState persists a new board, status and turn_time_start as
// given. Callers pass the current time for a non-terminal move and the
// previous turn_time_start for a terminal one, per spec.md §3 and §4.B.
func (s *Store) UpdateGameState(ctx context.Context, id uint32, board string, status int, turnTimeStart int64) error {
	_, err := s.commands["update-game-state"].ExecContext(ctx, board, status, turnTimeStart, id)
	return err
}

// DeleteEmptyGames reaps every game whose both slots are null
// (invariant 3).
func (s *Store) DeleteEmptyGames(ctx context.Context) (int64, error) {
	res, err := s.commands["delete-empty-games"].ExecContext(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteStaleGames removes games older than cutoff.
func (s *Store) DeleteStaleGames(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.commands["delete-old-games"].ExecContext(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StaleTurnGame is one row of the turn-timeout scan: an in-progress game
// whose current side has held the turn past the configured threshold.
type StaleTurnGame struct {
	ID            uint32
	Status        int
	Board         string
	TurnTimeStart int64
	CyanPlayer    uint32
	MagentaPlayer uint32
}

// StaleTurnGames lists every non-terminal game, both slots filled, whose
// turn_time_start is older than cutoff — the maintenance tick's
// turn-timeout candidate set.
func (s *Store) StaleTurnGames(ctx context.Context, cutoff int64) ([]StaleTurnGame, error) {
	rows, err := s.queries["select-stale-turn-games"].QueryContext(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaleTurnGame
	for rows.Next() {
		var g StaleTurnGame
		if err := rows.Scan(&g.ID, &g.Status, &g.Board, &g.TurnTimeStart, &g.CyanPlayer, &g.MagentaPlayer); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}
