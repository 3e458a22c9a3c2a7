// Package taskstore is the task/project/area domain of §3.3: a thin
// service layer wired directly to the storage pool, grounded on the
// relational CRUD + partial-update shape of
// vanducng-goclaw/internal/store/pg's team/task repositories, adapted
// from Postgres/lib/pq to the embedded sqlite pool internal/storage
// opens. The teacher module has no equivalent of this domain.
package taskstore

import "time"

type AreaStatus string

const (
	AreaActive   AreaStatus = "active"
	AreaArchived AreaStatus = "archived"
)

type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskBacklog    TaskStatus = "backlog"
)

func (s TaskStatus) terminal() bool {
	return s == TaskCompleted || s == TaskCancelled
}

type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

type TaskSource string

const (
	SourceUser   TaskSource = "user"
	SourceAgent  TaskSource = "agent"
	SourceSkill  TaskSource = "skill"
	SourceSystem TaskSource = "system"
)

type DependencyRelationship string

const (
	RelationBlocks  DependencyRelationship = "blocks"
	RelationRelated DependencyRelationship = "related"
)

type Area struct {
	ID          string
	WorkspaceID string
	Title       string
	Description string
	Status      AreaStatus
	Tags        []string
	SortOrder   int
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Project struct {
	ID          string
	WorkspaceID string
	AreaID      *string
	Title       string
	Description string
	Status      ProjectStatus
	Tags        []string
	Metadata    map[string]any
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Task struct {
	ID               string
	WorkspaceID      string
	ProjectID        *string
	AreaID           *string
	ParentTaskID     *string
	Title            string
	Description      string
	Status           TaskStatus
	Priority         TaskPriority
	Source           TaskSource
	Tags             []string
	DueDate          *time.Time
	DeferredUntil    *time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	EstimatedMinutes *int
	ActualMinutes    int
	Notes            string
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type TaskDependency struct {
	BlockerTaskID string
	BlockedTaskID string
	Relationship  DependencyRelationship
	CreatedAt     time.Time
}

type ActivityAction string

const (
	ActivityCreated        ActivityAction = "created"
	ActivityUpdated        ActivityAction = "updated"
	ActivityStatusChanged  ActivityAction = "status_changed"
	ActivityTimeLogged     ActivityAction = "time_logged"
	ActivityNoteAdded      ActivityAction = "note_added"
	ActivityDependencyAdded ActivityAction = "dependency_added"
	ActivityDeleted        ActivityAction = "deleted"
)

type Activity struct {
	ID            string
	TaskID        string
	SessionID     *string
	EventID       *string
	Action        ActivityAction
	OldValue      *string
	NewValue      *string
	Detail        *string
	MinutesLogged *int
	Timestamp     time.Time
}

// ListTasksFilter is the filter/sort contract §4.E "List/Search" names.
type ListTasksFilter struct {
	WorkspaceID      string
	Status           []TaskStatus
	Priority         []TaskPriority
	AreaID           *string
	ProjectID        *string
	ParentTaskID     *string
	DueBefore        *time.Time
	Tags             []string
	IncludeCompleted bool
	IncludeDeferred  bool
	IncludeBacklog   bool
	Limit            int
	Offset           int
}

// ActiveSummary is the dashboard-style aggregate §4.E "Active summary" names.
type ActiveSummary struct {
	InProgress []Task
	Pending    int
	Overdue    int
	Deferred   int
}
