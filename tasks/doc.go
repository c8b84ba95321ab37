// Package tasks defines the task wire record and the handler registry.
//
// A task arrives on a queue as JSON:
//
//	{
//	  "task_id":         "7f1c...",
//	  "task_type":       "sample_task_1",
//	  "label":           "partition-3",
//	  "parameters_json": "{\"rows\": 100}",
//	  "return_result":   true
//	}
//
// task_id, task_type and parameters_json are required. label may be absent
// or null. parameters_json is an opaque string that is carried through to
// the handler without being parsed.
//
// # Handlers
//
// A Handler receives the runner's affinity cache and the decoded task:
//
//	reg := tasks.NewRegistry()
//	reg.Register("sample_task_1", tasks.HandlerFunc(
//	    func(ctx context.Context, c *affinity.Cache, t *tasks.Task) (string, error) {
//	        return "done", nil
//	    }))
//
// RegisterFunc derives the task type from the function name, converting
// Go's camelCase to the snake_case names producers use: sampleTask1
// registers as "sample_task_1".
package tasks
