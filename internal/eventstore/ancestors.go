package eventstore

import (
	"context"
	"fmt"
)

// GetAncestors walks parent pointers from eventID back to the root,
// crossing session boundaries unconditionally at session.fork events
// (spec §3.2 invariant 4, §4.B "Ancestor-crossing fork invariant"), and
// returns them root-to-target inclusive.
//
// A forked session's ancestor chain is: the forked session's own events
// from its root (a session.fork event whose parent_id points into the
// source session) up to eventID, preceded by the source session's events
// from its own root up to the fork point — segments joined at the fork
// edge, each segment internally in sequence order.
func (s *Store) GetAncestors(ctx context.Context, eventID string) ([]*Event, error) {
	var chain []*Event
	cur := eventID
	for {
		ev, err := s.GetEvent(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, ev)
		if ev.ParentID == nil {
			break
		}
		cur = *ev.ParentID
	}
	reverse(chain)
	return chain, nil
}

func reverse(evs []*Event) {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
}

// GetDescendants returns every event reachable forward from id via
// parent_id (breadth-first), not restricted to a single session — a
// session.fork event whose parent_id is id will pull in the forked
// session's events too.
func (s *Store) GetDescendants(ctx context.Context, id string) ([]*Event, error) {
	var out []*Event
	queue := []string{id}
	seen := map[string]bool{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		children, err := s.GetChildren(ctx, cur)
		if err != nil {
			return nil, fmt.Errorf("get children of %s: %w", cur, err)
		}
		for _, c := range children {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}
