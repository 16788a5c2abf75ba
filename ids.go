package genstore

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"

	"github.com/jward/genstore/internal/model"
)

// DefaultIDFormats returns the Gramps ID templates used when none are
// configured.
func DefaultIDFormats() map[model.Kind]string {
	return map[model.Kind]string{
		model.KindPerson:     "I%04d",
		model.KindFamily:     "F%04d",
		model.KindEvent:      "E%04d",
		model.KindPlace:      "P%04d",
		model.KindSource:     "S%04d",
		model.KindMedia:      "O%04d",
		model.KindRepository: "R%04d",
		model.KindNote:       "N%04d",
	}
}

// CreateID returns a new handle: the 32 hex digits of a time-ordered UUID.
func CreateID() model.Handle {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return model.Handle(hex.EncodeToString(id[:]))
}

// IDFormat returns the Gramps ID template used for kind k.
func (db *DB) IDFormat(k model.Kind) string {
	if f, ok := db.idFormats[k]; ok && f != "" {
		return f
	}
	return DefaultIDFormats()[k]
}

// FindNextGrampsID returns the next unused Gramps ID for kind k. The
// per-kind counter advances past IDs already stored or reserved by t, so
// manually assigned IDs are never handed out again. t may be nil.
func (db *DB) FindNextGrampsID(k model.Kind, t *Txn) (string, error) {
	if err := db.checkOpen(); err != nil {
		return "", err
	}
	format := db.IDFormat(k)

	db.idMu.Lock()
	defer db.idMu.Unlock()
	for {
		id := fmt.Sprintf(format, db.idCounters[k])
		db.idCounters[k]++
		if t != nil && t.hasID(k, id) {
			continue
		}
		used, err := db.HasGrampsID(k, id)
		if err != nil {
			return "", err
		}
		if !used {
			if t != nil {
				t.reserveID(k, id)
			}
			return id, nil
		}
	}
}
