// Package genstore is an embedded object store for genealogical records:
// people, families, events, places, sources, media, repositories and notes.
//
// Objects are stored as encoded blobs in handle-keyed tables. Beside them
// the store keeps a reference map of which object points at which, a set of
// secondary indices (Gramps ID, surname, event and repository type), and an
// undo history of the transactions committed in the current session.
//
// # Usage
//
// Open a store, change it inside a transaction and query it:
//
//	db, err := genstore.Open("family-tree")
//	if err != nil { ... }
//	defer db.Close()
//
//	err = db.WithTransaction("Add person", func(t *genstore.Txn) error {
//		_, err := db.AddPerson(&genstore.Person{
//			PrimaryName: genstore.Name{FirstName: "Ann", Surname: "Smith"},
//		}, t)
//		return err
//	})
//
//	for link, err := range db.FindBacklinkHandles(placeHandle) {
//		...
//	}
//
// # Transactions
//
// An interactive transaction queues its changes and applies them together
// in [DB.CommitTransaction]; it can then be reverted with [DB.Undo] and
// reapplied with [DB.Redo]. A batch transaction ([Batch]) writes every
// change immediately and suspends the surname and referenced-handle indices
// until it commits, which makes bulk imports fast. Once a batch has run,
// undo is unavailable for the rest of the session.
//
// # Read-only stores
//
// A store opened with [ReadOnly] answers every query. Mutations return nil
// without touching the store.
//
// # Storage
//
// The default backend is SQLite; Badger can be selected with [WithBackend]
// or used in memory with [InMemory]. Either way a "lock" file holding
// user@host marks a store open for writing, and a "need_recover" marker is
// left behind when the engine reports a failure that needs a check on the
// next open.
package genstore
