package spotlight

import (
	"context"
	"encoding/json"
)

// Provenance records which side of the originating room a candidate came from.
// It is set once when the candidate is accepted and never overwritten.
type Provenance string

const (
	ProvenanceUnset    Provenance = ""
	ProvenanceInsider  Provenance = "insider"
	ProvenanceOutsider Provenance = "outsider"
)

// RoomKind mirrors the stored room kinds.
type RoomKind string

const (
	RoomKindDirect   RoomKind = "d"
	RoomKindChannel  RoomKind = "c"
	RoomKindPrivate  RoomKind = "p"
	RoomKindLivechat RoomKind = "l"
)

// Candidate is the user projection returned by a search.
type Candidate struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Name       string     `json:"name,omitempty"`
	Status     string     `json:"status,omitempty"`
	AvatarETag string     `json:"avatar_etag,omitempty"`
	Provenance Provenance `json:"provenance,omitempty"`
}

// Room is the room projection the aggregator works with.
type Room struct {
	ID               string          `json:"id"`
	Kind             RoomKind        `json:"kind"`
	Name             string          `json:"name,omitempty"`
	FName            string          `json:"fname,omitempty"`
	ParticipantIDs   []string        `json:"-"`
	JoinCodeRequired bool            `json:"join_code_required,omitempty"`
	LastMessage      json.RawMessage `json:"last_message,omitempty"`
}

// Query is the immutable per-call input of a user search.
type Query struct {
	Term        string
	RoomID      string
	RequesterID string
	Exclude     []string // usernames already known to the caller
	Budget      int      // total candidates to return, must be positive
}

// Options is the injected search configuration. It is passed per call so the
// aggregator stays deterministic without a live settings service.
type Options struct {
	Limit            int
	SearchFields     []string
	SortByRealName   bool
	AnonymousRead    bool
	StoreLastMessage bool
}

// ScopeKind selects how a membership scope is resolved by the directory.
type ScopeKind string

const (
	// ScopeMembers restricts candidates to members of RoomID.
	ScopeMembers ScopeKind = "members"
	// ScopeParticipants restricts candidates to the fixed UserIDs list.
	ScopeParticipants ScopeKind = "participants"
	// ScopeSubscribers restricts candidates to subscribers of RoomID,
	// omitting OmitUserID.
	ScopeSubscribers ScopeKind = "subscribers"
)

// Scope is the room-kind-specific insider pool for a search stage.
type Scope struct {
	Kind       ScopeKind
	RoomID     string
	UserIDs    []string
	OmitUserID string
}

// TermQuery is the bounded lookup contract handed to the Directory. The term
// is raw text; implementations must match it case-insensitively and escape
// any query-engine metacharacters.
type TermQuery struct {
	Term           string
	Fields         []string
	Exclude        []string // usernames to skip, compared case-insensitively
	Limit          int
	SortByRealName bool
	Scope          *Scope // nil searches server-wide
}

// Directory is the read-only user lookup view consumed by the aggregator.
type Directory interface {
	// FindUserByUsername returns the active user exactly matching username,
	// compared case-insensitively.
	FindUserByUsername(ctx context.Context, username string) (Candidate, bool, error)
	// FindRoomUserByUsername is FindUserByUsername restricted to members of roomID.
	FindRoomUserByUsername(ctx context.Context, roomID, username string) (Candidate, bool, error)
	// SearchActiveUsers returns active users matching q, honoring its scope,
	// exclusion set, and limit.
	SearchActiveUsers(ctx context.Context, q TermQuery) ([]Candidate, error)
	// SearchConnectedUsers returns users sharing a direct room with requesterID
	// that match q.
	SearchConnectedUsers(ctx context.Context, requesterID string, q TermQuery) ([]Candidate, error)
}

// RoomSource resolves rooms and runs the room-name searches.
type RoomSource interface {
	Room(ctx context.Context, id string) (Room, bool, error)
	SubscribedRoomIDs(ctx context.Context, userID string, kinds []RoomKind) ([]string, error)
	FindRoomByName(ctx context.Context, name string, kinds []RoomKind) (Room, bool, error)
	// SearchRooms matches rooms of the given kinds by name, skipping excludeIDs.
	SearchRooms(ctx context.Context, term string, kinds []RoomKind, excludeIDs []string, limit int) ([]Room, error)
	// SearchPublicRooms matches non-default public channels by name.
	SearchPublicRooms(ctx context.Context, term string, limit int) ([]Room, error)
}

// AccessView exposes the capability checks the aggregator gates stages on.
type AccessView interface {
	// CanListOutsiders reports whether userID may see users outside their rooms.
	CanListOutsiders(ctx context.Context, userID string) (bool, error)
	// CanListInsiders reports whether userID may list members of room.
	CanListInsiders(ctx context.Context, userID string, room Room) (bool, error)
	// CanSearchRooms reports whether userID may search channels at all.
	CanSearchRooms(ctx context.Context, userID string) (bool, error)
	// CanPreviewChannels reports whether userID may see last messages of
	// channels they are not in.
	CanPreviewChannels(ctx context.Context, userID string) (bool, error)
}
