package arbiter

import (
	"context"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fourrow"

	"fourrow/internal/conf"
	"fourrow/internal/store"
)

func testArbiter(t *testing.T) *Arbiter {
	t.Helper()
	file := filepath.Join(t.TempDir(), "fourrow.db")
	st, err := store.Open(file, log.Default(), log.Default())
	require.NoError(t, err)
	t.Cleanup(st.Shutdown)

	c := &conf.Conf{
		Log:                  log.Default(),
		Debug:                log.New(log.Writer(), "", 0),
		QueueCapacity:        32,
		ReplyTimeout:         time.Second,
		PlayerCountLimit:     100,
		TurnTimeout:          25 * time.Second,
		GameCleanupTimeout:   time.Hour,
		PlayerCleanupTimeout: 10 * time.Minute,
		CleanupInterval:      time.Minute,
	}
	return New(c, st)
}

func joinReq(phrase string) *Request {
	return &Request{Kind: KindJoinOrGetID, Phrase: phrase}
}

func TestPairUpFairnessArrivalOrder(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)

	r1, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(100, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomeWaiting, r1.Status)

	r2, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(101, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomePaired, r2.Status)
	require.Equal(t, fourrow.Magenta, r2.Side)

	cp, err := a.handleCheckPairing(ctx, &Request{Kind: KindCheckPairing, PlayerID: r1.PlayerID})
	require.NoError(t, err)
	require.True(t, cp.Paired)
	require.True(t, cp.IsCyan)
}

func TestPhrasePairUpOnlyMatchesIdenticalPhrase(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)

	r1, err := a.handleJoinOrGetID(ctx, joinReq("secret"), time.Unix(1, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomeWaiting, r1.Status)

	r2, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(2, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomeWaiting, r2.Status, "phrase-less player must not pair with a phrased one")

	r3, err := a.handleJoinOrGetID(ctx, joinReq("secret"), time.Unix(3, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomePaired, r3.Status)
}

func TestPlaceTokenHorizontalWinEndsGame(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)

	cyan, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(1, 0))
	require.NoError(t, err)
	magenta, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(2, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomePaired, magenta.Status)

	moves := []struct {
		playerID uint32
		col      int
	}{
		{cyan.PlayerID, 0}, {magenta.PlayerID, 0},
		{cyan.PlayerID, 1}, {magenta.PlayerID, 1},
		{cyan.PlayerID, 2}, {magenta.PlayerID, 2},
		{cyan.PlayerID, 3},
	}
	var last Response
	for _, m := range moves {
		last, err = a.handlePlaceToken(ctx, &Request{
			Kind: KindPlaceToken, PlayerID: m.playerID, Column: m.col,
		}, time.Unix(10, 0))
		require.NoError(t, err)
	}
	require.Equal(t, OutcomeGameEndedCyanWon, last.Status)
}

func TestPlaceTokenRejectsOutOfTurn(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)

	cyan, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(1, 0))
	require.NoError(t, err)
	_, err = a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(2, 0))
	require.NoError(t, err)

	resp, err := a.handlePlaceToken(ctx, &Request{
		Kind: KindPlaceToken, PlayerID: 0, Column: 0,
	}, time.Unix(3, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomeUnknownID, resp.Status)

	// magenta attempts to move first: cyan goes first per pair-up.
	magentaID := findOtherPlayer(t, a, cyan.PlayerID)
	resp, err = a.handlePlaceToken(ctx, &Request{
		Kind: KindPlaceToken, PlayerID: magentaID, Column: 0,
	}, time.Unix(3, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomeNotYourTurn, resp.Status)
}

func TestDisconnectSurfacesToSurvivor(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)

	cyan, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(1, 0))
	require.NoError(t, err)
	magenta, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(2, 0))
	require.NoError(t, err)

	d, err := a.handleDisconnect(ctx, &Request{Kind: KindDisconnect, PlayerID: magenta.PlayerID})
	require.NoError(t, err)
	require.True(t, d.Removed)

	state, err := a.handleGetGameState(ctx, &Request{Kind: KindGetGameState, PlayerID: cyan.PlayerID})
	require.NoError(t, err)
	require.Equal(t, OutcomeOpponentDisconnected, state.Status)

	state2, err := a.handleGetGameState(ctx, &Request{Kind: KindGetGameState, PlayerID: cyan.PlayerID})
	require.NoError(t, err)
	require.Equal(t, OutcomeUnknownID, state2.Status)
}

func TestEmoteFIFODeliveryOnePerGetGameState(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)

	cyan, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(1, 0))
	require.NoError(t, err)
	magenta, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(2, 0))
	require.NoError(t, err)

	_, err = a.handleSendEmote(ctx, &Request{Kind: KindSendEmote, PlayerID: cyan.PlayerID, Emote: "smile"}, time.Unix(5, 0))
	require.NoError(t, err)

	state, err := a.handleGetGameState(ctx, &Request{Kind: KindGetGameState, PlayerID: magenta.PlayerID})
	require.NoError(t, err)
	require.True(t, state.HasEmote)
	require.Equal(t, "smile", state.Emote)

	state2, err := a.handleGetGameState(ctx, &Request{Kind: KindGetGameState, PlayerID: magenta.PlayerID})
	require.NoError(t, err)
	require.False(t, state2.HasEmote)
}

func TestTurnTimeoutSubstitutesAIMove(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)

	cyan, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(1, 0))
	require.NoError(t, err)
	_, err = a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(2, 0))
	require.NoError(t, err)

	_, err = a.handlePlaceToken(ctx, &Request{Kind: KindPlaceToken, PlayerID: cyan.PlayerID, Column: 3}, time.Unix(10, 0))
	require.NoError(t, err)

	// Force the stored turn_time_start far enough into the past that
	// the next tick treats magenta's turn as timed out.
	gameID, err := a.store.PlayerGameID(ctx, cyan.PlayerID)
	require.NoError(t, err)
	g, err := a.store.GetGame(ctx, gameID)
	require.NoError(t, err)
	require.NoError(t, a.store.UpdateGameState(ctx, gameID, g.Board, g.Status, 0))

	require.NoError(t, a.handleTurnTimeouts(ctx, time.Unix(1000, 0)))

	after, err := a.store.GetGame(ctx, gameID)
	require.NoError(t, err)
	require.NotEqual(t, int(1), after.Status, "AI should have moved, leaving cyan's turn again unless the game ended")

	tokens := 0
	for _, c := range after.Board {
		if c == 'b' || c == 'c' || c == 'd' || c == 'e' || c == 'f' || c == 'g' || c == 'h' || c == 'i' {
			tokens++
		}
	}
	require.Equal(t, 2, tokens)
}

func TestPlayerCapRejectsBeyondLimit(t *testing.T) {
	ctx := context.Background()
	a := testArbiter(t)
	a.conf.PlayerCountLimit = 1

	r1, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(1, 0))
	require.NoError(t, err)
	require.NotEqual(t, OutcomeTooManyPlayers, r1.Status)

	r2, err := a.handleJoinOrGetID(ctx, joinReq(""), time.Unix(2, 0))
	require.NoError(t, err)
	require.Equal(t, OutcomeTooManyPlayers, r2.Status)

	n, err := a.store.PlayerCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// findOtherPlayer fetches the opponent id via the game row, since these
// white-box tests do not track both generated ids directly.
func findOtherPlayer(t *testing.T, a *Arbiter, known uint32) uint32 {
	t.Helper()
	ctx := context.Background()
	gameID, err := a.store.PlayerGameID(ctx, known)
	require.NoError(t, err)
	g, err := a.store.GetGame(ctx, gameID)
	require.NoError(t, err)
	if g.CyanPlayer == known {
		return g.MagentaPlayer
	}
	return g.CyanPlayer
}
