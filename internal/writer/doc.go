// Package writer implements the datastore write path: translating request
// events into db events, ordering concurrent writers and persisting their
// requests under strictly increasing positions.
//
// The Service depends on four ports (Database, ReadDatabase, Messaging,
// OccLocker). internal/store implements the database ports and
// internal/messaging the notification port; internal/testutil has
// in-memory fakes of all four.
//
// # Ordering
//
// Within one transaction a write call:
//
//  1. checks locked fields and translates every request
//  2. takes a Sequencer ticket
//  3. re-reads the migration index and repeats step 1 if it moved
//  4. persists request i at position index+i+1
//  5. notifies Messaging with every persisted position
//  6. commits
//
// and releases its ticket only after the transaction finished. A failure
// anywhere rolls everything back, so failed writes never consume a
// position.
package writer
