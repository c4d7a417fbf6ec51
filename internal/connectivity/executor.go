package connectivity

// Executor runs a notification task on the designated execution context.
// It must run tasks in the order they were submitted and must not block the
// caller for long.
type Executor func(task func())

// SyncExecutor runs tasks on the calling goroutine.
func SyncExecutor(task func()) {
	task()
}
