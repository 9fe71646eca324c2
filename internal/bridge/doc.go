// Package bridge connects the synchronous editor loop to asynchronous
// workers.
//
// Each worker category owns one bounded result channel. Workers Post typed
// messages; the loop calls DrainFrame once per frame, which polls every
// channel without blocking and hands each message to a handler. Messages
// keep their order within a category and have no order across categories.
//
// Requests issued by the loop carry a RequestID and a deadline. Results
// for unknown or expired requests, and for buffers that have been closed,
// are dropped on arrival:
//
//	id := b.Issue(bridge.CategoryFileIO, buf, 5*time.Second)
//	pool.TrySubmit(func(ctx context.Context) error {
//		data, err := os.ReadFile(path)
//		return b.Post(ctx, bridge.Message{
//			Category: bridge.CategoryFileIO,
//			Buffer:   buf,
//			Request:  id,
//			Payload:  ReadResult{Data: data, Err: err},
//		})
//	})
//
// A worker that exits unexpectedly marks its category degraded. The
// editor keeps running without that feature.
package bridge
