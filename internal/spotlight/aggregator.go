// Package spotlight implements the incremental user and room search behind
// the mention/jump-to autocomplete: an ordered sequence of lookup stages
// sharing one result budget and one username exclusion set.
package spotlight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidArgument rejects calls that violate the search contract before
// any stage runs.
var ErrInvalidArgument = errors.New("invalid argument")

// Aggregator runs the staged user search. It holds no per-call state; every
// invocation threads its own accumulator through the stages.
type Aggregator struct {
	directory Directory
	rooms     RoomSource
	access    AccessView
	logger    *slog.Logger
}

func NewAggregator(log *slog.Logger, directory Directory, rooms RoomSource, access AccessView) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		directory: directory,
		rooms:     rooms,
		access:    access,
		logger:    log.With(slog.String("service", "spotlight")),
	}
}

// accumulator is the mutable per-call state: accepted candidates in priority
// order plus the running case-insensitive username exclusion set.
type accumulator struct {
	candidates []Candidate
	seen       map[string]struct{}
	budget     int
}

func newAccumulator(budget int, exclude []string) *accumulator {
	acc := &accumulator{
		seen:   make(map[string]struct{}, len(exclude)+budget),
		budget: budget,
	}
	for _, username := range exclude {
		acc.seen[strings.ToLower(strings.TrimSpace(username))] = struct{}{}
	}
	return acc
}

func (a *accumulator) remaining() int { return a.budget - len(a.candidates) }

func (a *accumulator) full() bool { return a.remaining() <= 0 }

// add accepts c unless its username is already excluded or the budget is
// spent. Provenance is applied only when c carries none yet.
func (a *accumulator) add(c Candidate, prov Provenance) bool {
	if a.full() {
		return false
	}
	key := strings.ToLower(strings.TrimSpace(c.Username))
	if key == "" {
		return false
	}
	if _, dup := a.seen[key]; dup {
		return false
	}
	if c.Provenance == ProvenanceUnset {
		c.Provenance = prov
	}
	a.seen[key] = struct{}{}
	a.candidates = append(a.candidates, c)
	return true
}

func (a *accumulator) addAll(batch []Candidate, prov Provenance) {
	for _, c := range batch {
		a.add(c, prov)
	}
}

// exclusions returns the current exclusion set for the next stage's query.
func (a *accumulator) exclusions() []string {
	out := make([]string, 0, len(a.seen))
	for username := range a.seen {
		out = append(out, username)
	}
	return out
}

// SearchUsers produces a ranked, deduplicated, budget-bounded candidate list
// for q. Stages run strictly in order; each one receives the remaining budget
// and stops the pipeline once it is spent.
func (a *Aggregator) SearchUsers(ctx context.Context, q Query, opts Options) ([]Candidate, error) {
	term := strings.TrimSpace(q.Term)
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", ErrInvalidArgument)
	}
	if q.Budget <= 0 {
		return nil, fmt.Errorf("%w: budget must be positive, got %d", ErrInvalidArgument, q.Budget)
	}

	acc := newAccumulator(q.Budget, q.Exclude)

	var room Room
	haveRoom := false
	if strings.TrimSpace(q.RoomID) != "" {
		found, ok, err := a.rooms.Room(ctx, q.RoomID)
		if err != nil {
			return nil, fmt.Errorf("resolve room: %w", err)
		}
		if !ok {
			// Stale room references are routine in autocomplete; soft-empty.
			a.logger.Debug("search room not found", slog.String("room_id", q.RoomID))
			return []Candidate{}, nil
		}
		room = found
		haveRoom = true
	}

	canOutsiders, err := a.access.CanListOutsiders(ctx, q.RequesterID)
	if err != nil {
		return nil, err
	}
	canInsiders := canOutsiders
	if !canInsiders && haveRoom {
		canInsiders, err = a.access.CanListInsiders(ctx, q.RequesterID, room)
		if err != nil {
			return nil, err
		}
	}

	// Exact username match inside the room comes before everything else.
	if haveRoom && canInsiders {
		exact, ok, err := a.directory.FindRoomUserByUsername(ctx, room.ID, term)
		if err != nil {
			return nil, err
		}
		if ok {
			acc.add(exact, ProvenanceInsider)
		}
	}

	// Server-wide exact match, only when nothing matched locally.
	if len(acc.candidates) == 0 && canOutsiders {
		exact, ok, err := a.directory.FindUserByUsername(ctx, term)
		if err != nil {
			return nil, err
		}
		if ok {
			acc.add(exact, ProvenanceOutsider)
		}
	}

	connectedSearched := false
	if haveRoom && canInsiders {
		if done, err := a.runStage(ctx, acc, func(remaining int) (stageResult, error) {
			return a.searchInsiders(ctx, acc, term, room, q.RequesterID, opts, remaining)
		}); done || err != nil {
			return finish(acc, err)
		}
		connectedSearched = true
		if done, err := a.runStage(ctx, acc, func(remaining int) (stageResult, error) {
			return a.searchConnected(ctx, acc, term, q.RequesterID, opts, remaining)
		}); done || err != nil {
			return finish(acc, err)
		}
	}

	switch {
	case canOutsiders:
		if done, err := a.runStage(ctx, acc, func(remaining int) (stageResult, error) {
			return a.searchOutsiders(ctx, acc, term, opts, remaining)
		}); done || err != nil {
			return finish(acc, err)
		}
	case connectedSearched:
		// Insiders and connected users were already searched; nothing broader
		// is permitted.
	case haveRoom && !canInsiders:
		// A room was given but the requester may list neither insiders nor
		// outsiders: no fallback applies.
	default:
		if done, err := a.runStage(ctx, acc, func(remaining int) (stageResult, error) {
			return a.searchConnected(ctx, acc, term, q.RequesterID, opts, remaining)
		}); done || err != nil {
			return finish(acc, err)
		}
	}

	return finish(acc, nil)
}

type stageResult struct {
	batch      []Candidate
	provenance Provenance
}

// runStage checks cancellation and the remaining budget, executes the stage
// with that budget as its local limit, and folds its batch into acc. It
// reports whether the pipeline should stop.
func (a *Aggregator) runStage(ctx context.Context, acc *accumulator, stage func(remaining int) (stageResult, error)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	remaining := acc.remaining()
	if remaining <= 0 {
		return true, nil
	}
	res, err := stage(remaining)
	if err != nil {
		return true, err
	}
	acc.addAll(res.batch, res.provenance)
	return acc.full(), nil
}

func (a *Aggregator) searchInsiders(ctx context.Context, acc *accumulator, term string, room Room, requesterID string, opts Options, limit int) (stageResult, error) {
	scope := membershipScope(room, requesterID)
	batch, err := a.directory.SearchActiveUsers(ctx, TermQuery{
		Term:           term,
		Fields:         opts.SearchFields,
		Exclude:        acc.exclusions(),
		Limit:          limit,
		SortByRealName: opts.SortByRealName,
		Scope:          &scope,
	})
	if err != nil {
		return stageResult{}, fmt.Errorf("search insiders: %w", err)
	}
	return stageResult{batch: batch, provenance: ProvenanceInsider}, nil
}

func (a *Aggregator) searchConnected(ctx context.Context, acc *accumulator, term, requesterID string, opts Options, limit int) (stageResult, error) {
	batch, err := a.directory.SearchConnectedUsers(ctx, requesterID, TermQuery{
		Term:           term,
		Fields:         opts.SearchFields,
		Exclude:        acc.exclusions(),
		Limit:          limit,
		SortByRealName: opts.SortByRealName,
	})
	if err != nil {
		return stageResult{}, fmt.Errorf("search connected users: %w", err)
	}
	return stageResult{batch: batch, provenance: ProvenanceOutsider}, nil
}

func (a *Aggregator) searchOutsiders(ctx context.Context, acc *accumulator, term string, opts Options, limit int) (stageResult, error) {
	batch, err := a.directory.SearchActiveUsers(ctx, TermQuery{
		Term:           term,
		Fields:         opts.SearchFields,
		Exclude:        acc.exclusions(),
		Limit:          limit,
		SortByRealName: opts.SortByRealName,
	})
	if err != nil {
		return stageResult{}, fmt.Errorf("search outsiders: %w", err)
	}
	return stageResult{batch: batch, provenance: ProvenanceOutsider}, nil
}

// finish returns the accumulated candidates, or nothing at all on error so an
// aborted caller never sees partial results.
func finish(acc *accumulator, err error) ([]Candidate, error) {
	if err != nil {
		return nil, err
	}
	if acc.candidates == nil {
		return []Candidate{}, nil
	}
	return acc.candidates, nil
}

// membershipScope derives the insider pool for a room. Direct rooms carry a
// fixed participant list; livechat rooms are scoped to their subscribers;
// every other kind is scoped to room membership.
func membershipScope(room Room, requesterID string) Scope {
	switch room.Kind {
	case RoomKindDirect:
		ids := make([]string, 0, len(room.ParticipantIDs))
		for _, id := range room.ParticipantIDs {
			if id != requesterID {
				ids = append(ids, id)
			}
		}
		return Scope{Kind: ScopeParticipants, UserIDs: ids}
	case RoomKindLivechat:
		return Scope{Kind: ScopeSubscribers, RoomID: room.ID, OmitUserID: requesterID}
	default:
		return Scope{Kind: ScopeMembers, RoomID: room.ID}
	}
}
