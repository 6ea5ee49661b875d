package store

import "context"

// validEmoteTags is the §3 allow-list; SendEmote rejects anything else
// before it ever reaches a row, so an unknown tag can only appear here
// via a store that predates a tag removal.
var validEmoteTags = map[string]bool{
	"smile":   true,
	"neutral": true,
	"frown":   true,
	"think":   true,
}

// ValidEmoteTag reports whether tag is one of the recognised emotes.
func ValidEmoteTag(tag string) bool {
	return validEmoteTags[tag]
}

// InsertEmote records an emote addressed to receiverID.
func (s *Store) InsertEmote(ctx context.Context, receiverID uint32, tag string, now int64) error {
	_, err := s.commands["insert-emote"].ExecContext(ctx, receiverID, tag, now)
	return err
}

// ConsumeOldestEmote fetches and deletes the oldest pending emote for a
// receiver (consume-on-read, per spec.md §3's Emote lifecycle). Unknown
// tags are dropped with a warning rather than returned, and the scan
// continues to the next-oldest row.
func (s *Store) ConsumeOldestEmote(ctx context.Context, receiverID uint32) (*Emote, error) {
	for {
		var e Emote
		err := s.queries["select-oldest-emote"].QueryRowContext(ctx, receiverID).Scan(&e.ID, &e.Tag)
		if err != nil {
			return nil, err
		}
		if _, delErr := s.commands["delete-emote"].ExecContext(ctx, e.ID); delErr != nil {
			return nil, delErr
		}
		if !ValidEmoteTag(e.Tag) {
			s.log.Printf("dropped emote %d for player %d: unrecognised tag %q", e.ID, receiverID, e.Tag)
			continue
		}
		return &e, nil
	}
}

// DeleteStaleEmotes removes emotes older than cutoff.
func (s *Store) DeleteStaleEmotes(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.commands["delete-old-emotes"].ExecContext(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
