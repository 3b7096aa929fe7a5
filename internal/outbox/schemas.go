package outbox

import "example.com/taskflow/internal/events"

const activityEventsSchema = `{
  "type": "object",
  "title": "ActivityEvent",
  "oneOf": [
    {
      "title": "ActivityUpserted",
      "properties": {
        "activity_id": {"type": "string"},
        "tenant_id": {"type": "string"},
        "title": {"type": "string"},
        "description": {"type": "string"},
        "order": {"type": "number"},
        "updated_at": {"type": "string", "format": "date-time"}
      },
      "required": ["activity_id", "tenant_id", "title", "order", "updated_at"]
    },
    {
      "title": "ActivityDeleted",
      "properties": {
        "activity_id": {"type": "string"},
        "tenant_id": {"type": "string"},
        "deleted_at": {"type": "string", "format": "date-time"}
      },
      "required": ["activity_id", "tenant_id", "deleted_at"]
    }
  ]
}`

const projectEventsSchema = `{
  "type": "object",
  "title": "ProjectEvent",
  "oneOf": [
    {
      "title": "ProjectUpserted",
      "properties": {
        "project_id": {"type": "string"},
        "tenant_id": {"type": "string"},
        "activity_id": {"type": "string"},
        "title": {"type": "string"},
        "order": {"type": "number"},
        "updated_at": {"type": "string", "format": "date-time"}
      },
      "required": ["project_id", "tenant_id", "title", "order", "updated_at"]
    },
    {
      "title": "ProjectDeleted",
      "properties": {
        "project_id": {"type": "string"},
        "tenant_id": {"type": "string"},
        "deleted_at": {"type": "string", "format": "date-time"}
      },
      "required": ["project_id", "tenant_id", "deleted_at"]
    }
  ]
}`

const taskEventsSchema = `{
  "type": "object",
  "title": "TaskEvent",
  "oneOf": [
    {
      "title": "TaskUpserted",
      "properties": {
        "task_id": {"type": "string"},
        "tenant_id": {"type": "string"},
        "project_id": {"type": "string"},
        "title": {"type": "string"},
        "status": {"type": "string", "enum": ["active", "completed"]},
        "progress": {"type": "string"},
        "rounds": {"type": "integer", "minimum": 0},
        "goal": {"type": "integer", "minimum": 0},
        "goal_type": {"type": "string", "enum": ["Daily", "Weekly", "Monthly"]},
        "order": {"type": "number"},
        "completed_at": {"type": "string", "format": "date-time"},
        "updated_at": {"type": "string", "format": "date-time"}
      },
      "required": ["task_id", "tenant_id", "title", "status", "progress", "rounds", "goal", "goal_type", "order", "updated_at"]
    },
    {
      "title": "TaskDeleted",
      "properties": {
        "task_id": {"type": "string"},
        "tenant_id": {"type": "string"},
        "deleted_at": {"type": "string", "format": "date-time"}
      },
      "required": ["task_id", "tenant_id", "deleted_at"]
    }
  ]
}`

const roundCompletedSchema = `{
  "type": "object",
  "title": "RoundCompleted",
  "properties": {
    "record_id": {"type": "string"},
    "task_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "round": {"type": "integer", "minimum": 1},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["record_id", "task_id", "tenant_id", "round", "completed_at"],
  "additionalProperties": false
}`

const pomodoroSessionSchema = `{
  "type": "object",
  "title": "PomodoroSessionLogged",
  "properties": {
    "session_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "task_id": {"type": "string"},
    "day": {"type": "string", "format": "date"},
    "completed_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "tenant_id", "day", "completed_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeActivityUpserted:      {Schema: activityEventsSchema},
	events.TypeActivityDeleted:       {Schema: activityEventsSchema},
	events.TypeProjectUpserted:       {Schema: projectEventsSchema},
	events.TypeProjectDeleted:        {Schema: projectEventsSchema},
	events.TypeTaskUpserted:          {Schema: taskEventsSchema},
	events.TypeTaskDeleted:           {Schema: taskEventsSchema},
	events.TypeRoundCompleted:        {Schema: roundCompletedSchema},
	events.TypePomodoroSessionLogged: {Schema: pomodoroSessionSchema},
}
