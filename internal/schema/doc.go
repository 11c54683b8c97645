// Package schema defines the records questlog keeps locally and exchanges
// with the backend: tasks, goals and timer sessions.
//
// # Identifiers
//
// Every record carries an ID. Records created on this machine start with a
// local numeric ID assigned by the local store. The first successful create
// call against the backend returns a backend string ID, which replaces the
// local one:
//
//	task.ID.IsLocal()   // true before the first sync
//	task.ID.IsBackend() // true afterwards
//
// # Logical identity
//
// Two records are the same logical entity when their IDs match or, absent
// matching IDs, when title and creation timestamp match exactly. DedupeKey
// encodes the second rule.
//
// # Relationships
//
// Goals reference tasks through a single TaskIDs field and tasks reference
// goals through GoalIDs. The backend historically used two fields for the
// goal side. Only relatedTaskIds is read: the numeric relatedTasks entries
// are another client's local keys and never resolve here.
package schema
