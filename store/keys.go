package store

// Key naming conventions shared with the dispatcher.
// All keys are prefixed with "task-runners:".

const keyPrefix = "task-runners:"

// RunningKey is the Set of registered runner IDs.
const RunningKey = keyPrefix + "running"

// AvailableKey is the Set of runner IDs currently accepting work.
const AvailableKey = keyPrefix + "available"

// SharedQueue is the identity whose queue any runner consumes.
const SharedQueue = "all"

// LabelKey returns the Set of runners holding label: task-runners:labels:{label}:workers
func LabelKey(label string) string { return keyPrefix + "labels:" + label + ":workers" }

// QueueKey returns the job list for a runner: task-runners:{id}:jobs
func QueueKey(runnerID string) string { return keyPrefix + runnerID + ":jobs" }

// SharedQueueKey returns the job list every runner consumes.
func SharedQueueKey() string { return QueueKey(SharedQueue) }

// ResultChannel returns the pub/sub channel for a task's result: task-runners:results:{taskID}
func ResultChannel(taskID string) string { return keyPrefix + "results:" + taskID }

// ResultKey returns the key retaining a task's result after publication.
func ResultKey(taskID string) string { return ResultChannel(taskID) + ":value" }

// HeartbeatChannel returns the channel a runner's heartbeats are published on.
func HeartbeatChannel(runnerID string) string { return keyPrefix + "heartbeat:" + runnerID }
