package qcache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sparqlcache/qcache/kv"
)

// recordFrom marshals v (a QueryEntry/GraphEntry/PatternEntry/RelatedGroup
// pointer) into the flat kv.Record shape the Store persists, by round-
// tripping through JSON — the same encode-at-the-boundary discipline the
// module's Badger-backed storage engine uses for its own node/edge records.
func recordFrom(v any) (kv.Record, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var rec kv.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// decodeRecord reverses recordFrom, decoding rec into out.
func decodeRecord(rec kv.Record, out any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (e *Engine) getQueryEntry(ctx context.Context, qid string) (*QueryEntry, bool, error) {
	rec, ok, err := e.store.Get(ctx, qid)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get query entry %q: %v", ErrBackend, qid, err)
	}
	if !ok {
		return nil, false, nil
	}
	var entry QueryEntry
	if err := decodeRecord(rec, &entry); err != nil {
		return nil, false, fmt.Errorf("%w: decoding query entry %q: %v", ErrInvariantViolation, qid, err)
	}
	return &entry, true, nil
}

func (e *Engine) putQueryEntry(ctx context.Context, entry *QueryEntry) error {
	rec, err := recordFrom(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding query entry %q: %v", ErrInvariantViolation, entry.ID, err)
	}
	if err := e.store.Set(ctx, entry.ID, rec); err != nil {
		return fmt.Errorf("%w: set query entry %q: %v", ErrBackend, entry.ID, err)
	}
	return nil
}

func (e *Engine) deleteQueryEntry(ctx context.Context, qid string) error {
	if err := e.store.Delete(ctx, qid); err != nil {
		return fmt.Errorf("%w: delete query entry %q: %v", ErrBackend, qid, err)
	}
	return nil
}

func (e *Engine) getGraphEntry(ctx context.Context, gid string) (*GraphEntry, bool, error) {
	rec, ok, err := e.store.Get(ctx, gid)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get graph entry %q: %v", ErrBackend, gid, err)
	}
	if !ok {
		return nil, false, nil
	}
	var entry GraphEntry
	if err := decodeRecord(rec, &entry); err != nil {
		return nil, false, fmt.Errorf("%w: decoding graph entry %q: %v", ErrInvariantViolation, gid, err)
	}
	return &entry, true, nil
}

func (e *Engine) putGraphEntry(ctx context.Context, entry *GraphEntry) error {
	rec, err := recordFrom(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding graph entry %q: %v", ErrInvariantViolation, entry.ID, err)
	}
	if err := e.store.Set(ctx, entry.ID, rec); err != nil {
		return fmt.Errorf("%w: set graph entry %q: %v", ErrBackend, entry.ID, err)
	}
	return nil
}

func (e *Engine) deleteGraphEntry(ctx context.Context, gid string) error {
	if err := e.store.Delete(ctx, gid); err != nil {
		return fmt.Errorf("%w: delete graph entry %q: %v", ErrBackend, gid, err)
	}
	return nil
}

func (e *Engine) getPatternEntry(ctx context.Context, key string) (*PatternEntry, bool, error) {
	rec, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get pattern entry %q: %v", ErrBackend, key, err)
	}
	if !ok {
		return nil, false, nil
	}
	var entry PatternEntry
	if err := decodeRecord(rec, &entry); err != nil {
		return nil, false, fmt.Errorf("%w: decoding pattern entry %q: %v", ErrInvariantViolation, key, err)
	}
	return &entry, true, nil
}

func (e *Engine) putPatternEntry(ctx context.Context, entry *PatternEntry) error {
	rec, err := recordFrom(entry)
	if err != nil {
		return fmt.Errorf("%w: encoding pattern entry %q: %v", ErrInvariantViolation, entry.Key, err)
	}
	if err := e.store.Set(ctx, entry.Key, rec); err != nil {
		return fmt.Errorf("%w: set pattern entry %q: %v", ErrBackend, entry.Key, err)
	}
	return nil
}

func (e *Engine) deletePatternEntry(ctx context.Context, key string) error {
	if err := e.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: delete pattern entry %q: %v", ErrBackend, key, err)
	}
	return nil
}

func (e *Engine) getRelatedGroup(ctx context.Context, id string) (*RelatedGroup, bool, error) {
	rec, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("%w: get related group %q: %v", ErrBackend, id, err)
	}
	if !ok {
		return nil, false, nil
	}
	var group RelatedGroup
	if err := decodeRecord(rec, &group); err != nil {
		return nil, false, fmt.Errorf("%w: decoding related group %q: %v", ErrInvariantViolation, id, err)
	}
	return &group, true, nil
}

func (e *Engine) putRelatedGroup(ctx context.Context, group *RelatedGroup) error {
	rec, err := recordFrom(group)
	if err != nil {
		return fmt.Errorf("%w: encoding related group %q: %v", ErrInvariantViolation, group.ID, err)
	}
	if err := e.store.Set(ctx, group.ID, rec); err != nil {
		return fmt.Errorf("%w: set related group %q: %v", ErrBackend, group.ID, err)
	}
	return nil
}

func (e *Engine) deleteRelatedGroup(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: delete related group %q: %v", ErrBackend, id, err)
	}
	return nil
}
