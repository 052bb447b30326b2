// Package faktory provides a Go client for a Faktory-compatible job server,
// centered on the batch protocol: enqueue units of work, group related jobs
// into a named batch, and let the server fire a callback job once every
// member completes.
//
// All commands travel through a small fixed pool of exclusive connections.
// Callers beyond the pool's capacity block until a connection frees or a
// hard timeout elapses, so a slow server degrades into bounded waiting
// rather than unbounded connection growth.
//
// # Quick Start
//
// Push a job:
//
//	client, err := faktory.NewClient("localhost:7419")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = client.Push(ctx, faktory.NewJob("email.send", []any{"user@example.com"}))
//
// Run a batch:
//
//	bid, err := client.CreateBatch(ctx, "Nightly report",
//	    faktory.WithSuccess(faktory.NewJob("report.deliver", []any{})),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, j := range jobs {
//	    j.Custom = map[string]any{"bid": bid}
//	    if err := client.Push(ctx, j); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	err = client.CommitBatch(ctx, bid)
//
// Jobs must be pushed synchronously before the commit: the client cannot see
// jobs an application is still enqueueing in the background, and the server
// may finalize the batch without them.
package faktory
