package qcache

import (
	"context"
	"sort"

	"github.com/sparqlcache/qcache/internal/shortid"
)

// frameState is a transaction frame's lifecycle: active while it can still
// accept deferred operations or be committed, finished once committed. The
// specification this engine is built against documents no rollback — a
// frame only ever moves forward.
type frameState int

const (
	frameActive frameState = iota
	frameFinished
)

// opKind distinguishes the three deferred operation shapes a transaction
// frame can carry. The source representation stores these as
// {function, parameter} bags; this is the Go sum type for that, dispatched
// with a switch in applyDeferredOp instead of a string-keyed call.
type opKind int

const (
	opRemember opKind = iota
	opInvalidateByQuery
	opInvalidateByGraph
)

// deferredOp is one deferred cache mutation captured on a transaction
// frame's placedOps. Only the fields relevant to kind are populated.
type deferredOp struct {
	kind     opKind
	query    string
	result   any
	graphURI string
}

// transactionFrame is one entry on the nested transaction stack. It exists
// only in memory — no index observes its placedOps until the outermost
// frame commits.
type transactionFrame struct {
	id        int
	state     frameState
	placedOps []deferredOp
}

// activeFrame returns the innermost frame still in frameActive, searching
// from the top of the stack down. A frame just committed (frameFinished)
// is skipped in favor of the still-active frame beneath it — this is what
// lets an inner commit "advance activeId to the highest-numbered frame
// still in state active" without popping anything off the stack.
func (e *Engine) activeFrame() *transactionFrame {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if e.stack[i].state == frameActive {
			return e.stack[i]
		}
	}
	return nil
}

func (e *Engine) deferOp(op deferredOp) {
	e.activeFrame().placedOps = append(e.activeFrame().placedOps, op)
}

// BeginTransaction pushes a new, active transaction frame and returns its
// ID. IDs are dense integers starting at 0, assigned monotonically as
// frames are pushed onto this Engine's stack; the stack (and the ID
// sequence) resets once the outermost frame commits.
func (e *Engine) BeginTransaction() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.invalidatedDuringTxn == nil {
		e.invalidatedDuringTxn = make(map[string]struct{})
	}
	id := len(e.stack)
	e.stack = append(e.stack, &transactionFrame{id: id, state: frameActive})
	return id
}

// ActiveTransactionID returns the ID of the innermost active frame, or -1
// if no transaction is active.
func (e *Engine) ActiveTransactionID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.activeFrame()
	if f == nil {
		return -1
	}
	return f.id
}

// RunningTransactions returns the IDs of every frame still on the stack, in
// the order they were pushed.
func (e *Engine) RunningTransactions() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]int, 0, len(e.stack))
	for _, f := range e.stack {
		ids = append(ids, f.id)
	}
	return ids
}

// CommitTransaction commits the innermost active transaction frame.
//
// Committing an inner frame only marks it finished and returns: its
// placedOps stay deferred, exactly as BeginTransaction's nesting promises —
// no index observes them yet. Only committing the outermost frame (frame
// ID 0) actually executes anything: every op from every frame still on the
// stack, in stack order, runs against the engine with transaction deferral
// bypassed, a RelatedGroup is formed from every query remembered anywhere
// in that run (minus any that were invalidated again before commit, per
// invalidatedDuringTxn), and the stack is cleared.
func (e *Engine) CommitTransaction(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	frame := e.activeFrame()
	if frame == nil {
		return ErrNoActiveTransaction
	}

	if frame.id != 0 {
		// Inner commit: just advance past this frame. Its placedOps stay
		// deferred — activeFrame will now resolve to the next frame down
		// still in frameActive — until the outermost frame commits.
		frame.state = frameFinished
		return nil
	}

	// Outermost commit: replay every op from every frame still on the
	// stack, in stack order, with the outermost frame kept frameActive
	// throughout so invalidatedDuringTxn bookkeeping inside the replayed
	// ops still observes a transaction in scope. Only once replay
	// finishes does this frame itself move to frameFinished.
	var remembered []string
	for _, f := range e.stack {
		for _, op := range f.placedOps {
			if err := e.applyDeferredOp(ctx, op); err != nil {
				return err
			}
			if op.kind == opRemember {
				remembered = append(remembered, shortid.New(op.query))
			}
		}
	}
	frame.state = frameFinished

	members := make([]string, 0, len(remembered))
	for _, qid := range remembered {
		if _, invalidated := e.invalidatedDuringTxn[qid]; invalidated {
			continue
		}
		members = append(members, qid)
	}

	e.stack = nil
	e.invalidatedDuringTxn = nil

	if len(members) == 0 {
		return nil
	}

	sort.Strings(members)
	members = dedupeSorted(members)

	groupID, err := e.relatedGroupID(members)
	if err != nil {
		return err
	}
	group := &RelatedGroup{ID: groupID, Members: members}
	if err := e.putRelatedGroup(ctx, group); err != nil {
		return err
	}

	for _, qid := range members {
		entry, ok, err := e.getQueryEntry(ctx, qid)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		entry.RelatedGroupID = groupID
		if err := e.putQueryEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// applyDeferredOp executes one deferred op for real, against the engine's
// indices — the "checkTransaction = false" replay path, reachable only from
// CommitTransaction.
func (e *Engine) applyDeferredOp(ctx context.Context, op deferredOp) error {
	switch op.kind {
	case opRemember:
		return e.applyRemember(ctx, op.query, op.result)
	case opInvalidateByQuery:
		return e.applyInvalidateByQuery(ctx, op.query, true)
	case opInvalidateByGraph:
		return e.applyInvalidateByGraph(ctx, op.graphURI)
	default:
		return nil
	}
}

// relatedGroupID content-addresses a RelatedGroup on its (already sorted,
// deduplicated) member set, so two transactions that memoize the same
// queries produce the same group.
func (e *Engine) relatedGroupID(sortedMembers []string) (string, error) {
	data, err := canonicalJSON(sortedMembers)
	if err != nil {
		return "", err
	}
	return shortid.New(string(data)), nil
}
