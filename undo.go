package genstore

import (
	"github.com/jward/genstore/internal/codec"
	"github.com/jward/genstore/internal/kv"
	"github.com/jward/genstore/internal/model"
	"github.com/jward/genstore/internal/undo"
)

// Undo reverts the most recent committed transaction. It reports false
// when there is nothing to undo, the history was disabled by a batch
// transaction, or the store is read-only.
func (db *DB) Undo() (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	if db.readOnly {
		return false, nil
	}
	return db.history.Undo(db.replay)
}

// Redo reapplies the most recently undone transaction.
func (db *DB) Redo() (bool, error) {
	if err := db.checkOpen(); err != nil {
		return false, err
	}
	if db.readOnly {
		return false, nil
	}
	return db.history.Redo(db.replay)
}

// CanUndo reports whether Undo would do anything.
func (db *DB) CanUndo() bool {
	return db.history != nil && !db.readOnly && db.history.CanUndo()
}

// CanRedo reports whether Redo would do anything.
func (db *DB) CanRedo() bool {
	return db.history != nil && !db.readOnly && db.history.CanRedo()
}

// UndoHistory lists the descriptions of the undoable transactions, oldest
// first.
func (db *DB) UndoHistory() []string {
	if db.history == nil {
		return nil
	}
	return db.history.Messages()
}

// UndoMessage describes the transaction Undo would revert.
func (db *DB) UndoMessage() string {
	if db.history == nil {
		return ""
	}
	return db.history.UndoMessage()
}

// RedoMessage describes the transaction Redo would reapply.
func (db *DB) RedoMessage() string {
	if db.history == nil {
		return ""
	}
	return db.history.RedoMessage()
}

// OnUndoAvailability registers fn to hear when undo or redo becomes
// available or unavailable.
func (db *DB) OnUndoAvailability(fn func(canUndo, canRedo bool)) (unsubscribe func()) {
	return db.history.OnChange(fn)
}

// replay writes a transaction's records in one storage transaction and then
// brings the session aggregates and subscribers up to date.
func (db *DB) replay(t *undo.Transaction, forward bool) error {
	recs := t.Records()
	if err := db.env.Update(func(tx *kv.Txn) error {
		return applyRecords(tx, recs, forward)
	}); err != nil {
		return db.storeErr("replay "+t.Msg, err)
	}

	var changes changeSet
	people := false
	for i := range recs {
		rec := recs[i]
		if !forward {
			rec = recs[len(recs)-1-i]
		}
		if rec.RefMap {
			continue
		}
		from, to := rec.Old, rec.New
		if !forward {
			from, to = to, from
		}
		changes.note(rec.Kind, rec.Handle(), from != nil, to != nil)
		if rec.Kind == model.KindPerson {
			people = true
			db.replayGenderStats(from, to)
		}
	}
	if people {
		if err := db.rebuildSurnameList(); err != nil {
			return err
		}
	}
	changes.emit(db.bus)
	db.log.Debugw("transaction replayed", "msg", t.Msg, "forward", forward)
	return nil
}

func (db *DB) replayGenderStats(from, to []byte) {
	db.metaMu.Lock()
	defer db.metaMu.Unlock()
	if from != nil {
		if o, err := codec.Decode(model.KindPerson, from); err == nil {
			db.genderStats.UncountPerson(o.(*model.Person))
		}
	}
	if to != nil {
		if o, err := codec.Decode(model.KindPerson, to); err == nil {
			db.genderStats.CountPerson(o.(*model.Person))
		}
	}
}
