// Package sync reconciles the local store with the questlog backend.
//
// # Overview
//
// Records are created locally first and carry a local numeric id. Syncing an
// entity type pushes every local record to the backend one at a time:
//
//   - A record with a backend id is fetched remotely and updated. If the
//     backend no longer has it (get or update answers not found), it is
//     created again.
//   - A record with a local id is created remotely.
//
// Whenever the backend creates a record, the local row takes the new backend
// id and every reference to the old id is rewritten (identifier migration).
// A failure on one record is recorded in the Result and the loop continues
// with the next one; the call then also returns a *PartialError.
//
// # Reading
//
// LoadTasks and friends fetch backend records. They never fail: without a
// token or on network trouble they return an empty slice. MergeTasks and
// friends combine backend and local records for display, with the backend
// copy winning when both describe the same record (same id, or same title
// and creation time). PullTasks and friends copy backend records into the
// local store.
//
// # Concurrency
//
// Each entity type has a guard. Concurrent SyncTasks calls share one run and
// one Result. SyncAll runs the three entity types in parallel.
//
// Example:
//
//	syncer := sync.New(database, client, store, sync.Options{})
//	result, err := syncer.SyncTasks(ctx)
//	var partial *sync.PartialError
//	if errors.As(err, &partial) {
//	    for _, msg := range result.Errors {
//	        fmt.Println(msg)
//	    }
//	}
package sync
