package taskstore

import "github.com/oklog/ulid/v2"

// newID mirrors eventstore's id idiom: a lexicographically time-ordered
// ulid behind a prefix naming the entity kind.
func newID(prefix string) string { return prefix + ulid.Make().String() }

func newAreaID() string     { return newID("area_") }
func newProjectID() string  { return newID("proj_") }
func newTaskID() string     { return newID("task_") }
func newActivityID() string { return newID("act_") }
