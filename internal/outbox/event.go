// Package outbox turns committed entity mutations into JSON patches on the
// message stores.
//
// Repositories write one row per mutation into the event_outbox table in the
// same transaction as the mutation. The Dispatcher polls unpublished rows,
// re-reads the entity's current state and pushes an add, replace or remove
// patch onto the store the event type routes to. Delivery is at least once.
package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/example/kanband/internal/msgstore"
)

// ErrUnroutable is returned for event types outside the known set.
var ErrUnroutable = errors.New("unroutable event type")

// EntityType names the table an event is about.
type EntityType string

const (
	EntityProject          EntityType = "project"
	EntityTask             EntityType = "task"
	EntityExecutionProcess EntityType = "execution_process"
)

// Action is the mutation an event records.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// EventType is one of the closed set of routable event types below. The
// zero value is invalid.
type EventType struct {
	entity EntityType
	action Action
}

var (
	ProjectCreated = EventType{EntityProject, ActionCreated}
	ProjectUpdated = EventType{EntityProject, ActionUpdated}
	ProjectDeleted = EventType{EntityProject, ActionDeleted}

	TaskCreated = EventType{EntityTask, ActionCreated}
	TaskUpdated = EventType{EntityTask, ActionUpdated}
	TaskDeleted = EventType{EntityTask, ActionDeleted}

	ExecutionProcessCreated = EventType{EntityExecutionProcess, ActionCreated}
	ExecutionProcessUpdated = EventType{EntityExecutionProcess, ActionUpdated}
	ExecutionProcessDeleted = EventType{EntityExecutionProcess, ActionDeleted}
)

var eventTypes = []EventType{
	ProjectCreated, ProjectUpdated, ProjectDeleted,
	TaskCreated, TaskUpdated, TaskDeleted,
	ExecutionProcessCreated, ExecutionProcessUpdated, ExecutionProcessDeleted,
}

// ParseEventType parses the event_type column. Unknown values wrap
// ErrUnroutable.
func ParseEventType(s string) (EventType, error) {
	for _, t := range eventTypes {
		if t.String() == s {
			return t, nil
		}
	}
	return EventType{}, fmt.Errorf("%w %q", ErrUnroutable, s)
}

// String renders the type as stored, e.g. "task.updated".
func (t EventType) String() string {
	if t.entity == "" {
		return ""
	}
	return string(t.entity) + "." + string(t.action)
}

func (t EventType) Entity() EntityType { return t.entity }
func (t EventType) Action() Action     { return t.action }

// Payload identifies the entity and carries the parent ids needed to route
// the event after the entity itself is gone.
type Payload struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
}

// Event is an outbox row ready to be inserted.
type Event struct {
	UUID    string
	Type    EventType
	Payload Payload
}

// NewEvent creates an event with a fresh uuid.
func NewEvent(t EventType, p Payload) Event {
	return Event{UUID: uuid.NewString(), Type: t, Payload: p}
}

// EncodePayload renders the payload column.
func (e Event) EncodePayload() (string, error) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode outbox payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload parses a payload column. The entity id is required, as is the
// parent id its entity type routes by.
func DecodePayload(t EventType, raw string) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Payload{}, fmt.Errorf("failed to decode outbox payload: %w", err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return Payload{}, errors.New("outbox payload has no id")
	}
	switch t.entity {
	case EntityTask:
		if p.ProjectID == "" {
			return Payload{}, errors.New("task payload has no project_id")
		}
	case EntityExecutionProcess:
		if p.TaskID == "" {
			return Payload{}, errors.New("execution_process payload has no task_id")
		}
	}
	return p, nil
}

// Route names the store and the collection an event is published under.
type Route struct {
	StoreKey   string
	Collection string
}

// RouteFor returns where events of type t about p are published.
func RouteFor(t EventType, p Payload) Route {
	switch t.entity {
	case EntityProject:
		return Route{StoreKey: msgstore.ProjectsKey, Collection: "projects"}
	case EntityTask:
		return Route{StoreKey: msgstore.ProjectTasksKey(p.ProjectID), Collection: "tasks"}
	default:
		return Route{StoreKey: msgstore.TaskExecutionsKey(p.TaskID), Collection: "execution_processes"}
	}
}
