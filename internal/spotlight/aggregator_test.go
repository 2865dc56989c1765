package spotlight

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

// fakeDirectory serves canned users and records the queries it saw.
type fakeDirectory struct {
	users     []Candidate            // server-wide active users
	members   map[string][]Candidate // roomID -> members
	connected []Candidate            // users sharing a direct room with anyone

	activeCalls    []TermQuery
	connectedCalls []TermQuery
	err            error
}

func (d *fakeDirectory) FindUserByUsername(_ context.Context, username string) (Candidate, bool, error) {
	if d.err != nil {
		return Candidate{}, false, d.err
	}
	for _, u := range d.users {
		if strings.EqualFold(u.Username, username) {
			return u, true, nil
		}
	}
	return Candidate{}, false, nil
}

func (d *fakeDirectory) FindRoomUserByUsername(_ context.Context, roomID, username string) (Candidate, bool, error) {
	if d.err != nil {
		return Candidate{}, false, d.err
	}
	for _, u := range d.members[roomID] {
		if strings.EqualFold(u.Username, username) {
			return u, true, nil
		}
	}
	return Candidate{}, false, nil
}

func matchTerm(pool []Candidate, q TermQuery) []Candidate {
	excluded := make(map[string]struct{}, len(q.Exclude))
	for _, username := range q.Exclude {
		excluded[strings.ToLower(username)] = struct{}{}
	}
	var out []Candidate
	for _, u := range pool {
		if len(out) >= q.Limit {
			break
		}
		if !strings.Contains(strings.ToLower(u.Username), strings.ToLower(q.Term)) {
			continue
		}
		if _, skip := excluded[strings.ToLower(u.Username)]; skip {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (d *fakeDirectory) SearchActiveUsers(_ context.Context, q TermQuery) ([]Candidate, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.activeCalls = append(d.activeCalls, q)
	pool := d.users
	if q.Scope != nil {
		switch q.Scope.Kind {
		case ScopeParticipants:
			pool = nil
			for _, u := range d.users {
				for _, id := range q.Scope.UserIDs {
					if u.ID == id {
						pool = append(pool, u)
					}
				}
			}
		case ScopeMembers, ScopeSubscribers:
			pool = d.members[q.Scope.RoomID]
		}
	}
	return matchTerm(pool, q), nil
}

func (d *fakeDirectory) SearchConnectedUsers(_ context.Context, _ string, q TermQuery) ([]Candidate, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.connectedCalls = append(d.connectedCalls, q)
	return matchTerm(d.connected, q), nil
}

type fakeRooms struct {
	rooms map[string]Room
}

func (r *fakeRooms) Room(_ context.Context, id string) (Room, bool, error) {
	room, ok := r.rooms[id]
	return room, ok, nil
}

func (r *fakeRooms) SubscribedRoomIDs(context.Context, string, []RoomKind) ([]string, error) {
	return nil, nil
}

func (r *fakeRooms) FindRoomByName(context.Context, string, []RoomKind) (Room, bool, error) {
	return Room{}, false, nil
}

func (r *fakeRooms) SearchRooms(context.Context, string, []RoomKind, []string, int) ([]Room, error) {
	return nil, nil
}

func (r *fakeRooms) SearchPublicRooms(context.Context, string, int) ([]Room, error) {
	return nil, nil
}

type fakeAccess struct {
	outsiders bool
	insiders  bool
}

func (a *fakeAccess) CanListOutsiders(context.Context, string) (bool, error) { return a.outsiders, nil }
func (a *fakeAccess) CanListInsiders(context.Context, string, Room) (bool, error) {
	return a.insiders, nil
}
func (a *fakeAccess) CanSearchRooms(context.Context, string) (bool, error)     { return true, nil }
func (a *fakeAccess) CanPreviewChannels(context.Context, string) (bool, error) { return false, nil }

func newTestAggregator(dir *fakeDirectory, rooms *fakeRooms, access *fakeAccess) *Aggregator {
	return NewAggregator(slog.New(slog.DiscardHandler), dir, rooms, access)
}

func usernames(list []Candidate) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Username)
	}
	return out
}

func TestSearchUsers_EmptyTerm(t *testing.T) {
	t.Parallel()
	agg := newTestAggregator(&fakeDirectory{}, &fakeRooms{}, &fakeAccess{})
	_, err := agg.SearchUsers(context.Background(), Query{Term: "  ", Budget: 5}, Options{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSearchUsers_NonPositiveBudget(t *testing.T) {
	t.Parallel()
	agg := newTestAggregator(&fakeDirectory{}, &fakeRooms{}, &fakeAccess{})
	_, err := agg.SearchUsers(context.Background(), Query{Term: "ali", Budget: 0}, Options{})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestSearchUsers_UnknownRoomSoftEmpty(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{users: []Candidate{{ID: "u1", Username: "alice"}}}
	agg := newTestAggregator(dir, &fakeRooms{rooms: map[string]Room{}}, &fakeAccess{outsiders: true, insiders: true})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "ali", RoomID: "gone", RequesterID: "self", Budget: 5}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result for unknown room, got %v", usernames(got))
	}
	if len(dir.activeCalls) != 0 || len(dir.connectedCalls) != 0 {
		t.Fatal("no stage should run for an unknown room")
	}
}

func TestSearchUsers_DirectRoomCounterpart(t *testing.T) {
	t.Parallel()
	alice := Candidate{ID: "u-alice", Username: "alice", Name: "Alice"}
	dir := &fakeDirectory{users: []Candidate{alice, {ID: "u-alison", Username: "alison"}}}
	rooms := &fakeRooms{rooms: map[string]Room{
		"R": {ID: "R", Kind: RoomKindDirect, ParticipantIDs: []string{"self", "u-alice"}},
	}}
	agg := newTestAggregator(dir, rooms, &fakeAccess{insiders: true})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "ali", RoomID: "R", RequesterID: "self", Budget: 5}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	want := []string{"alice"}
	if !reflect.DeepEqual(usernames(got), want) {
		t.Fatalf("got %v, want %v", usernames(got), want)
	}
	if got[0].Provenance != ProvenanceInsider {
		t.Errorf("provenance = %q, want insider", got[0].Provenance)
	}
}

func TestSearchUsers_OutsidersTagged(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{users: []Candidate{
		{ID: "1", Username: "bob1"},
		{ID: "2", Username: "bob2"},
		{ID: "3", Username: "bob3"},
	}}
	agg := newTestAggregator(dir, &fakeRooms{}, &fakeAccess{outsiders: true})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "bob", RequesterID: "self", Budget: 3}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	for _, c := range got {
		if c.Provenance != ProvenanceOutsider {
			t.Errorf("candidate %s provenance = %q, want outsider", c.Username, c.Provenance)
		}
	}
}

func TestSearchUsers_BudgetStopsLaterStages(t *testing.T) {
	t.Parallel()
	member := Candidate{ID: "m1", Username: "maria"}
	dir := &fakeDirectory{
		users:     []Candidate{member, {ID: "m2", Username: "mario"}},
		members:   map[string][]Candidate{"R": {member}},
		connected: []Candidate{{ID: "m3", Username: "marla"}},
	}
	rooms := &fakeRooms{rooms: map[string]Room{"R": {ID: "R", Kind: RoomKindChannel}}}
	agg := newTestAggregator(dir, rooms, &fakeAccess{outsiders: true, insiders: true})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "mar", RoomID: "R", RequesterID: "self", Budget: 1}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Username != "maria" {
		t.Errorf("first stage's match should win, got %s", got[0].Username)
	}
	// Only the insider stage may have queried; connected and outsider stages
	// must not run once the budget is spent.
	if len(dir.connectedCalls) != 0 {
		t.Error("connected stage ran after budget was exhausted")
	}
	if len(dir.activeCalls) != 1 {
		t.Errorf("active search ran %d times, want 1", len(dir.activeCalls))
	}
}

func TestSearchUsers_ExcludedUsernameNeverReturned(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{users: []Candidate{{ID: "u1", Username: "alice"}}}
	agg := newTestAggregator(dir, &fakeRooms{}, &fakeAccess{outsiders: true})

	got, err := agg.SearchUsers(context.Background(), Query{
		Term:        "ali",
		RequesterID: "self",
		Exclude:     []string{"Alice"},
		Budget:      5,
	}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("excluded username returned: %v", usernames(got))
	}
}

func TestSearchUsers_DedupAcrossStages(t *testing.T) {
	t.Parallel()
	shared := Candidate{ID: "u1", Username: "Casey"}
	dir := &fakeDirectory{
		users:     []Candidate{{ID: "u1", Username: "casey"}, {ID: "u2", Username: "caseyb"}},
		members:   map[string][]Candidate{"R": {shared}},
		connected: []Candidate{shared},
	}
	rooms := &fakeRooms{rooms: map[string]Room{"R": {ID: "R", Kind: RoomKindChannel}}}
	agg := newTestAggregator(dir, rooms, &fakeAccess{outsiders: true, insiders: true})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "case", RoomID: "R", RequesterID: "self", Budget: 10}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	seen := map[string]int{}
	for _, c := range got {
		seen[strings.ToLower(c.Username)]++
	}
	for username, n := range seen {
		if n > 1 {
			t.Errorf("username %q appeared %d times", username, n)
		}
	}
	// The insider copy wins and keeps its provenance.
	if got[0].Username != "Casey" || got[0].Provenance != ProvenanceInsider {
		t.Errorf("first = %s/%s, want Casey/insider", got[0].Username, got[0].Provenance)
	}
}

func TestSearchUsers_ExactMatchFirst(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{users: []Candidate{
		{ID: "1", Username: "bobby"},
		{ID: "2", Username: "bob"},
		{ID: "3", Username: "bobcat"},
	}}
	agg := newTestAggregator(dir, &fakeRooms{}, &fakeAccess{outsiders: true})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "bob", RequesterID: "self", Budget: 5}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	if len(got) == 0 || got[0].Username != "bob" {
		t.Fatalf("exact match should come first, got %v", usernames(got))
	}
}

func TestSearchUsers_NoInsidersWithoutPermission(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		members:   map[string][]Candidate{"R": {{ID: "u1", Username: "dana"}}},
		connected: []Candidate{{ID: "u2", Username: "danny"}},
	}
	rooms := &fakeRooms{rooms: map[string]Room{"R": {ID: "R", Kind: RoomKindChannel}}}
	agg := newTestAggregator(dir, rooms, &fakeAccess{})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "dan", RoomID: "R", RequesterID: "self", Budget: 5}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	// Room given, neither insiders nor outsiders listable: empty, no fallback.
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %v", usernames(got))
	}
	if len(dir.connectedCalls) != 0 {
		t.Error("connected fallback must not run when no stage is permitted")
	}
}

func TestSearchUsers_ConnectedFallbackWithoutOutsiders(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		users:     []Candidate{{ID: "u1", Username: "erin"}},
		connected: []Candidate{{ID: "u2", Username: "erika"}},
	}
	agg := newTestAggregator(dir, &fakeRooms{}, &fakeAccess{})

	got, err := agg.SearchUsers(context.Background(), Query{Term: "eri", RequesterID: "self", Budget: 5}, Options{})
	if err != nil {
		t.Fatalf("SearchUsers: %v", err)
	}
	want := []string{"erika"}
	if !reflect.DeepEqual(usernames(got), want) {
		t.Fatalf("got %v, want %v", usernames(got), want)
	}
}

func TestSearchUsers_Idempotent(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{users: []Candidate{
		{ID: "1", Username: "sam"},
		{ID: "2", Username: "samuel"},
		{ID: "3", Username: "samantha"},
	}}
	agg := newTestAggregator(dir, &fakeRooms{}, &fakeAccess{outsiders: true})

	q := Query{Term: "sam", RequesterID: "self", Budget: 2}
	first, err := agg.SearchUsers(context.Background(), q, Options{})
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := agg.SearchUsers(context.Background(), q, Options{})
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("results differ across identical calls: %v vs %v", first, second)
	}
	if len(first) > q.Budget {
		t.Fatalf("len(result) = %d exceeds budget %d", len(first), q.Budget)
	}
}

func TestSearchUsers_CancelledBetweenStages(t *testing.T) {
	t.Parallel()
	dir := &fakeDirectory{
		members: map[string][]Candidate{"R": {{ID: "u1", Username: "finn"}}},
	}
	rooms := &fakeRooms{rooms: map[string]Room{"R": {ID: "R", Kind: RoomKindChannel}}}
	agg := newTestAggregator(dir, rooms, &fakeAccess{insiders: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := agg.SearchUsers(ctx, Query{Term: "finn", RoomID: "R", RequesterID: "self", Budget: 5}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got != nil {
		t.Fatal("partial results returned to an aborted caller")
	}
}

func TestSearchUsers_StoreErrorPropagates(t *testing.T) {
	t.Parallel()
	boom := errors.New("directory down")
	dir := &fakeDirectory{err: boom}
	agg := newTestAggregator(dir, &fakeRooms{}, &fakeAccess{outsiders: true})

	_, err := agg.SearchUsers(context.Background(), Query{Term: "x", RequesterID: "self", Budget: 3}, Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestMembershipScope(t *testing.T) {
	t.Parallel()
	direct := membershipScope(Room{ID: "D", Kind: RoomKindDirect, ParticipantIDs: []string{"self", "other"}}, "self")
	if direct.Kind != ScopeParticipants || !reflect.DeepEqual(direct.UserIDs, []string{"other"}) {
		t.Errorf("direct scope = %+v", direct)
	}
	livechat := membershipScope(Room{ID: "L", Kind: RoomKindLivechat}, "self")
	if livechat.Kind != ScopeSubscribers || livechat.RoomID != "L" || livechat.OmitUserID != "self" {
		t.Errorf("livechat scope = %+v", livechat)
	}
	channel := membershipScope(Room{ID: "C", Kind: RoomKindChannel}, "self")
	if channel.Kind != ScopeMembers || channel.RoomID != "C" {
		t.Errorf("channel scope = %+v", channel)
	}
}
