package spotlight

import (
	"context"
	"fmt"
	"strings"
)

// roomSearchLimit caps room suggestions per search.
const roomSearchLimit = 5

// searchableKinds are the room kinds offered in room search.
var searchableKinds = []RoomKind{RoomKindChannel, RoomKindPrivate}

// SearchRooms matches rooms by name for the jump-to suggestions. Anonymous
// callers only see public channels, and only when anonymous reading is
// enabled. Authenticated callers need the room-search capability; rooms they
// are already subscribed to are skipped, except that an exact name match is
// also skipped from the substring results (it is already known to the caller).
func (a *Aggregator) SearchRooms(ctx context.Context, requesterID, term string, opts Options) ([]Room, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", ErrInvalidArgument)
	}

	if strings.TrimSpace(requesterID) == "" {
		if !opts.AnonymousRead {
			return []Room{}, nil
		}
		rooms, err := a.rooms.SearchPublicRooms(ctx, term, roomSearchLimit)
		if err != nil {
			return nil, err
		}
		return a.redactLastMessages(ctx, requesterID, rooms, opts)
	}

	allowed, err := a.access.CanSearchRooms(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []Room{}, nil
	}

	excludeIDs, err := a.rooms.SubscribedRoomIDs(ctx, requesterID, searchableKinds)
	if err != nil {
		return nil, err
	}
	if exact, ok, err := a.rooms.FindRoomByName(ctx, term, searchableKinds); err != nil {
		return nil, err
	} else if ok {
		excludeIDs = append(excludeIDs, exact.ID)
	}

	rooms, err := a.rooms.SearchRooms(ctx, term, searchableKinds, excludeIDs, roomSearchLimit)
	if err != nil {
		return nil, err
	}
	return a.redactLastMessages(ctx, requesterID, rooms, opts)
}

// redactLastMessages strips last messages from rooms the requester may not
// preview.
func (a *Aggregator) redactLastMessages(ctx context.Context, requesterID string, rooms []Room, opts Options) ([]Room, error) {
	if rooms == nil {
		return []Room{}, nil
	}
	if !opts.StoreLastMessage {
		return rooms, nil
	}
	canPreview, err := a.access.CanPreviewChannels(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	if canPreview {
		return rooms, nil
	}
	for i := range rooms {
		rooms[i].LastMessage = nil
	}
	return rooms, nil
}
