package persistence

import (
	"encoding/json"
	"fmt"

	"example.com/taskflow/internal/domain"
)

// TaskCollections holds the JSON encoded nested lists of a task, one per column.
type TaskCollections struct {
	DetailedNotes []byte
	TimeEntries   []byte
	ActivityLogs  []byte
	Media         []byte
}

// EncodeTaskCollections marshals the nested lists of a task. Nil slices encode as [].
func EncodeTaskCollections(task domain.Task) (TaskCollections, error) {
	var out TaskCollections
	var err error
	if out.DetailedNotes, err = marshalList(task.DetailedNotes); err != nil {
		return out, fmt.Errorf("encode detailed notes: %w", err)
	}
	if out.TimeEntries, err = marshalList(task.TimeEntries); err != nil {
		return out, fmt.Errorf("encode time entries: %w", err)
	}
	if out.ActivityLogs, err = marshalList(task.ActivityLogs); err != nil {
		return out, fmt.Errorf("encode activity logs: %w", err)
	}
	if out.Media, err = marshalList(task.Media); err != nil {
		return out, fmt.Errorf("encode media: %w", err)
	}
	return out, nil
}

// Decode fills the nested lists of task.
func (c TaskCollections) Decode(task *domain.Task) error {
	if err := unmarshalList(c.DetailedNotes, &task.DetailedNotes); err != nil {
		return fmt.Errorf("decode detailed notes: %w", err)
	}
	if err := unmarshalList(c.TimeEntries, &task.TimeEntries); err != nil {
		return fmt.Errorf("decode time entries: %w", err)
	}
	if err := unmarshalList(c.ActivityLogs, &task.ActivityLogs); err != nil {
		return fmt.Errorf("decode activity logs: %w", err)
	}
	if err := unmarshalList(c.Media, &task.Media); err != nil {
		return fmt.Errorf("decode media: %w", err)
	}
	return nil
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func unmarshalList[T any](raw []byte, dst *[]T) error {
	if len(raw) == 0 {
		*dst = nil
		return nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	if len(items) == 0 {
		items = nil
	}
	*dst = items
	return nil
}
