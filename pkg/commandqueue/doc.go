// Package commandqueue runs tasks in named lanes with FIFO ordering per lane,
// a per-lane concurrency limit and a global cap on in-flight tasks.
//
// Invariants:
// - Tasks in the same lane start in FIFO order.
// - Tasks in different lanes may execute concurrently, never more than
//   Config.MaxConcurrent at once.
// - Submit never blocks; past Config.MaxPending waiting tasks it fails with
//   ErrQueueFull.
// - A request ID seen within Config.DedupTTL is rejected with ErrDuplicate.
// - Idle lanes are dropped, so per-conversation lanes do not accumulate.
//
// Usage:
//
//	queue := commandqueue.New(commandqueue.DefaultConfig())
//	defer queue.Close()
//	err := queue.Submit(ctx, "room/alice", "update-42", func(ctx context.Context) (interface{}, error) {
//		return nil, handle(ctx)
//	})
package commandqueue
