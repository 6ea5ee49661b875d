package store

import (
	"context"
	"log"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	file := filepath.Join(t.TempDir(), "fourrow.db")
	s, err := Open(file, log.Default(), log.Default())
	require.NoError(t, err)
	t.Cleanup(s.Shutdown)
	return s
}

func TestInsertAndCountPlayers(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	n, err := s.PlayerCount(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	id, err := s.InsertPlayer(ctx, "", 1000)
	require.NoError(t, err)
	require.NotZero(t, id)

	ok, err := s.PlayerExists(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	n, err = s.PlayerCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUnpairedPlayersArrivalOrder(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	var ids []uint32
	for i, added := range []int64{100, 200, 300} {
		id, err := s.InsertPlayer(ctx, "", added)
		require.NoError(t, err, "insert %d", i)
		ids = append(ids, id)
	}

	unpaired, err := s.UnpairedPlayers(ctx)
	require.NoError(t, err)
	require.Len(t, unpaired, 3)
	for i, p := range unpaired {
		require.Equal(t, ids[i], p.ID)
	}
}

func TestPlayerGamePairingLink(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cyan, err := s.InsertPlayer(ctx, "", 1)
	require.NoError(t, err)
	magenta, err := s.InsertPlayer(ctx, "", 2)
	require.NoError(t, err)

	gameID, err := s.InsertGame(ctx, cyan, magenta, emptyBoard(), 10)
	require.NoError(t, err)
	require.NoError(t, s.SetPlayerGame(ctx, cyan, gameID))
	require.NoError(t, s.SetPlayerGame(ctx, magenta, gameID))

	got, err := s.PlayerGameID(ctx, cyan)
	require.NoError(t, err)
	require.Equal(t, gameID, got)

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	require.Equal(t, cyan, g.CyanPlayer)
	require.Equal(t, magenta, g.MagentaPlayer)
	require.Equal(t, 0, g.Status)
}

// TestDeletePlayerNullifiesSlotWithoutDeletingGame pins down spec.md
// invariant 4: a survivor's game row must not disappear underneath them.
func TestDeletePlayerNullifiesSlotWithoutDeletingGame(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cyan, err := s.InsertPlayer(ctx, "", 1)
	require.NoError(t, err)
	magenta, err := s.InsertPlayer(ctx, "", 2)
	require.NoError(t, err)
	gameID, err := s.InsertGame(ctx, cyan, magenta, emptyBoard(), 10)
	require.NoError(t, err)

	removed, err := s.DeletePlayer(ctx, magenta)
	require.NoError(t, err)
	require.True(t, removed)

	g, err := s.GetGame(ctx, gameID)
	require.NoError(t, err)
	require.Equal(t, cyan, g.CyanPlayer)
	require.Zero(t, g.MagentaPlayer)
}

func TestDeleteEmptyGamesReapsBothSlotsNull(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	cyan, err := s.InsertPlayer(ctx, "", 1)
	require.NoError(t, err)
	magenta, err := s.InsertPlayer(ctx, "", 2)
	require.NoError(t, err)
	gameID, err := s.InsertGame(ctx, cyan, magenta, emptyBoard(), 10)
	require.NoError(t, err)

	_, err = s.DeletePlayer(ctx, cyan)
	require.NoError(t, err)
	_, err = s.DeletePlayer(ctx, magenta)
	require.NoError(t, err)

	n, err := s.DeleteEmptyGames(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = s.GetGame(ctx, gameID)
	require.Equal(t, ErrNotFound, err)
}

func TestEmoteFIFOConsumeOnRead(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	receiver, err := s.InsertPlayer(ctx, "", 1)
	require.NoError(t, err)

	require.NoError(t, s.InsertEmote(ctx, receiver, "smile", 10))
	require.NoError(t, s.InsertEmote(ctx, receiver, "frown", 20))

	e1, err := s.ConsumeOldestEmote(ctx, receiver)
	require.NoError(t, err)
	require.Equal(t, "smile", e1.Tag)

	e2, err := s.ConsumeOldestEmote(ctx, receiver)
	require.NoError(t, err)
	require.Equal(t, "frown", e2.Tag)

	_, err = s.ConsumeOldestEmote(ctx, receiver)
	require.Equal(t, ErrNotFound, err)
}

func TestMigrateAddsPhraseColumnToOlderSchema(t *testing.T) {
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "fourrow.db")

	// Simulate an older schema lacking the phrase column entirely.
	s, err := Open(file, log.Default(), log.Default())
	require.NoError(t, err)
	_, err = s.write.Exec(`DROP TABLE players;`)
	require.NoError(t, err)
	_, err = s.write.Exec(`CREATE TABLE players (id INTEGER PRIMARY KEY, date_added INTEGER NOT NULL, game_id INTEGER);`)
	require.NoError(t, err)
	s.Shutdown()

	s2, err := Open(file, log.Default(), log.Default())
	require.NoError(t, err)
	defer s2.Shutdown()

	id, err := s2.InsertPlayer(ctx, "rendezvous", 5)
	require.NoError(t, err)
	require.NotZero(t, id)
}

func emptyBoard() string {
	b := make([]byte, 56)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
