package arbiter

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fourrow"

	"fourrow/internal/store"
)

// dispatch executes a single request atomically against the store and
// returns its reply. Store failures are transient per spec.md §7.5: they
// are logged and surfaced as OutcomeInternalError, never escalated to
// arbiter shutdown.
func (a *Arbiter) dispatch(ctx context.Context, req *Request) Response {
	now := time.Now()
	var (
		resp Response
		err  error
	)

	switch req.Kind {
	case KindJoinOrGetID:
		resp, err = a.handleJoinOrGetID(ctx, req, now)
	case KindCheckPairing:
		resp, err = a.handleCheckPairing(ctx, req)
	case KindGetGameState:
		resp, err = a.handleGetGameState(ctx, req)
	case KindDisconnect:
		resp, err = a.handleDisconnect(ctx, req)
	case KindPlaceToken:
		resp, err = a.handlePlaceToken(ctx, req, now)
	case KindSendEmote:
		resp, err = a.handleSendEmote(ctx, req, now)
	default:
		return Response{Status: OutcomeInternalError}
	}

	if err != nil {
		a.conf.Log.Printf("request %d failed: %v", req.Kind, err)
		if resp.Status == "" {
			resp.Status = OutcomeInternalError
		}
		resp.Err = err
	}
	return resp
}

// handleJoinOrGetID enforces the player cap, inserts a fresh player,
// runs the pair-up pass, then reports whether this player is now
// paired.
func (a *Arbiter) handleJoinOrGetID(ctx context.Context, req *Request, now time.Time) (Response, error) {
	n, err := a.store.PlayerCount(ctx)
	if err != nil {
		return Response{}, err
	}
	if uint(n) >= a.conf.PlayerCountLimit {
		return Response{Status: OutcomeTooManyPlayers}, nil
	}

	id, err := a.store.InsertPlayer(ctx, req.Phrase, now.Unix())
	if err != nil {
		return Response{}, err
	}

	if err := a.pairUp(ctx, now.Unix()); err != nil {
		a.conf.Log.Printf("pair-up pass: %v", err)
	}

	gameID, err := a.store.PlayerGameID(ctx, id)
	if err != nil {
		return Response{}, err
	}
	if gameID == 0 {
		return Response{Status: OutcomeWaiting, PlayerID: id}, nil
	}

	g, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return Response{}, err
	}
	side := fourrow.Magenta
	if g.CyanPlayer == id {
		side = fourrow.Cyan
	}
	return Response{Status: OutcomePaired, PlayerID: id, Side: side}, nil
}

// handleCheckPairing resolves (exists, paired, is_cyan) for player_id.
func (a *Arbiter) handleCheckPairing(ctx context.Context, req *Request) (Response, error) {
	exists, err := a.store.PlayerExists(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if !exists {
		return Response{Status: OutcomeUnknownID, Exists: false}, nil
	}

	gameID, err := a.store.PlayerGameID(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if gameID == 0 {
		return Response{Status: OutcomeNotPaired, Exists: true, Paired: false}, nil
	}

	g, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Status: OutcomePaired,
		Exists: true,
		Paired: true,
		IsCyan: g.CyanPlayer == req.PlayerID,
	}, nil
}

// handleGetGameState consumes the player's oldest pending emote, then
// reports game status, surfacing opponent disconnect and cleaning up
// after it per spec.md §4.B.
func (a *Arbiter) handleGetGameState(ctx context.Context, req *Request) (Response, error) {
	exists, err := a.store.PlayerExists(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if !exists {
		return Response{Status: OutcomeUnknownID}, nil
	}

	var resp Response
	emote, err := a.store.ConsumeOldestEmote(ctx, req.PlayerID)
	switch {
	case err == nil:
		resp.Emote = emote.Tag
		resp.HasEmote = true
	case errors.Is(err, store.ErrNotFound):
		// no pending emote
	default:
		return Response{}, err
	}

	gameID, err := a.store.PlayerGameID(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if gameID == 0 {
		resp.Status = OutcomeNotPaired
		return resp, nil
	}

	g, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return Response{}, err
	}

	if g.CyanPlayer == 0 || g.MagentaPlayer == 0 {
		if g.Status < 2 {
			if _, err := a.store.DeletePlayer(ctx, req.PlayerID); err != nil {
				return Response{}, err
			}
			if _, err := a.store.DeleteEmptyGames(ctx); err != nil {
				return Response{}, err
			}
			resp.Status = OutcomeOpponentDisconnected
			resp.Board = g.Board
			return resp, nil
		}
		// game already terminated: fall through and report the
		// terminal status instead of disconnect.
	}

	resp.Status = statusOutcome(g.Status)
	resp.Board = g.Board
	resp.BoardUpdatedAt = g.TurnTimeStart.Unix()
	return resp, nil
}

// handleDisconnect removes a player row unconditionally (idempotent).
func (a *Arbiter) handleDisconnect(ctx context.Context, req *Request) (Response, error) {
	removed, err := a.store.DeletePlayer(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if removed {
		if _, err := a.store.DeleteEmptyGames(ctx); err != nil {
			return Response{}, err
		}
	}
	return Response{Status: OutcomeOK, Removed: removed}, nil
}

// handlePlaceToken validates the move end to end and applies it through
// the Move & Win Engine, per spec.md §4.B.
func (a *Arbiter) handlePlaceToken(ctx context.Context, req *Request, now time.Time) (Response, error) {
	exists, err := a.store.PlayerExists(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if !exists {
		return Response{Status: OutcomeUnknownID}, nil
	}

	gameID, err := a.store.PlayerGameID(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if gameID == 0 {
		return Response{Status: OutcomeNotPairedYet}, nil
	}

	g, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		return Response{}, err
	}
	if g.CyanPlayer == 0 || g.MagentaPlayer == 0 {
		return Response{Status: OutcomeOpponentDisconnected}, nil
	}

	side := fourrow.Magenta
	if g.CyanPlayer == req.PlayerID {
		side = fourrow.Cyan
	}
	wantStatus := 0
	if side == fourrow.Magenta {
		wantStatus = 1
	}
	if g.Status != wantStatus {
		if g.Status >= 2 {
			return Response{Status: OutcomeIllegal, Board: g.Board}, nil
		}
		return Response{Status: OutcomeNotYourTurn, Board: g.Board}, nil
	}

	// column_or_index is interpreted strictly as a column 0..6; see
	// the open-question decision recorded for spec.md §9.
	if req.Column < 0 || req.Column >= fourrow.Cols {
		return Response{Status: OutcomeIllegal, Board: g.Board}, nil
	}

	board, err := fourrow.ParseBoard(g.Board)
	if err != nil {
		return Response{}, err
	}
	status, err := board.Place(req.Column, side)
	if err == fourrow.ErrIllegal {
		return Response{Status: OutcomeIllegal, Board: g.Board}, nil
	}
	if err != nil {
		return Response{}, err
	}

	turnTimeStart := g.TurnTimeStart.Unix()
	if !status.Terminal() {
		turnTimeStart = now.Unix()
	}
	if err := a.store.UpdateGameState(ctx, gameID, board.String(), int(status), turnTimeStart); err != nil {
		return Response{}, err
	}

	a.emit("placement", map[string]any{"game": gameID, "player": req.PlayerID, "column": req.Column})

	return Response{Status: placeTokenOutcome(int(status)), Board: board.String()}, nil
}

// handleSendEmote resolves the sender's opponent and inserts an emote
// row addressed to them.
func (a *Arbiter) handleSendEmote(ctx context.Context, req *Request, now time.Time) (Response, error) {
	if !store.ValidEmoteTag(req.Emote) {
		return Response{Status: OutcomeIllegal}, nil
	}

	gameID, err := a.store.PlayerGameID(ctx, req.PlayerID)
	if err != nil {
		return Response{}, err
	}
	if gameID == 0 {
		return Response{Status: OutcomeNotPairedYet}, nil
	}

	g, err := a.store.GetGame(ctx, gameID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Response{Status: OutcomeUnknownID}, nil
		}
		return Response{}, err
	}

	opponent := g.MagentaPlayer
	if g.CyanPlayer != req.PlayerID {
		opponent = g.CyanPlayer
	}
	if opponent == 0 {
		return Response{Status: OutcomeOpponentDisconnected}, nil
	}

	if err := a.store.InsertEmote(ctx, opponent, req.Emote, now.Unix()); err != nil {
		return Response{}, err
	}
	return Response{Status: OutcomeOK}, nil
}
