package permissions

import (
	"context"

	"github.com/parlorchat/parlor/internal/spotlight"
)

// RoomResolver loads the room projection access checks need.
type RoomResolver interface {
	Room(ctx context.Context, id string) (spotlight.Room, bool, error)
}

// RoomGate answers room access checks by id. Unknown rooms are denied.
type RoomGate struct {
	svc   *Service
	rooms RoomResolver
}

func NewRoomGate(svc *Service, rooms RoomResolver) *RoomGate {
	return &RoomGate{svc: svc, rooms: rooms}
}

func (g *RoomGate) CanAccessRoom(ctx context.Context, userID, roomID string) (bool, error) {
	room, ok, err := g.rooms.Room(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return g.svc.CanAccessRoom(ctx, userID, room)
}
