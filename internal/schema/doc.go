// Package schema defines the records slate synchronizes and the outbox
// entries that carry them to the remote store.
//
// # Records
//
// Folders form a tree through ParentID; notes belong to exactly one folder
// through FolderID. Both are identified by client-generated IDs that never
// change, so a record created offline keeps its identity everywhere:
//
//	{
//	  "id": "3f1c...",
//	  "name": "Work",
//	  "parentId": null,
//	  "sortOrder": 0,
//	  "createdAt": "2026-01-10T07:36:29.000Z",
//	  "updatedAt": "2026-01-10T07:36:29.000Z"
//	}
//
// # Outbox entries
//
// An OutboxEntry is one pending mutation. The payload is a tagged variant
// keyed by {Type, Action}:
//
//   - {folder, create|update} carries the full Folder snapshot
//   - {note, create|update} carries the full Note snapshot
//   - {folder|note, delete} carries nothing
//
// Entries are ordered by CreatedAt and then Seq, which is assigned by the
// local store when the entry is appended.
//
// # Timestamps
//
// All timestamps are UTC with millisecond precision. They are stored as
// fixed-width text (see FormatTime) so that comparing the stored strings
// compares the instants, which is what watermark queries rely on.
package schema
