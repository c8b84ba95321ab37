package tasks

import (
	"encoding/json"

	rerrors "github.com/vinayprograms/taskrunner/errors"
)

// Task is one unit of work popped from a queue.
type Task struct {
	TaskID       string `json:"task_id"`
	TaskType     string `json:"task_type"`
	Label        string `json:"label,omitempty"`
	Parameters   string `json:"parameters_json"`
	ReturnResult bool   `json:"return_result"`
}

// wireTask distinguishes absent fields from empty ones.
type wireTask struct {
	TaskID       *string `json:"task_id"`
	TaskType     *string `json:"task_type"`
	Label        *string `json:"label"`
	Parameters   *string `json:"parameters_json"`
	ReturnResult bool    `json:"return_result"`
}

// Decode parses and validates a raw task payload. Malformed JSON or a
// missing required field yields an ErrCodeInvalidInput error.
func Decode(data []byte) (*Task, error) {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, rerrors.WrapWithCode(err, rerrors.ErrCodeInvalidInput, "decode task")
	}

	switch {
	case w.TaskID == nil || *w.TaskID == "":
		return nil, rerrors.InvalidInput("decode task: task_id is required")
	case w.TaskType == nil || *w.TaskType == "":
		return nil, rerrors.InvalidInput("decode task: task_type is required",
			rerrors.WithTaskID(*w.TaskID))
	case w.Parameters == nil:
		return nil, rerrors.InvalidInput("decode task: parameters_json is required",
			rerrors.WithTaskID(*w.TaskID))
	}

	t := &Task{
		TaskID:       *w.TaskID,
		TaskType:     *w.TaskType,
		Parameters:   *w.Parameters,
		ReturnResult: w.ReturnResult,
	}
	if w.Label != nil {
		t.Label = *w.Label
	}
	return t, nil
}

// Encode serializes t for pushing onto a queue.
func Encode(t *Task) ([]byte, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, rerrors.Wrap(err, "encode task", rerrors.WithTaskID(t.TaskID))
	}
	return data, nil
}

// HasLabel reports whether the task carries an affinity hint.
func (t *Task) HasLabel() bool {
	return t.Label != ""
}

// Params unmarshals the parameter payload into v.
func (t *Task) Params(v interface{}) error {
	if err := json.Unmarshal([]byte(t.Parameters), v); err != nil {
		return rerrors.WrapWithCode(err, rerrors.ErrCodeInvalidInput, "decode parameters",
			rerrors.WithTaskID(t.TaskID))
	}
	return nil
}
