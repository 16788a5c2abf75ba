package genstore

import (
	"context"
	"fmt"

	"github.com/jward/genstore/internal/kv"
)

// Schema versions this build understands. Stores older than SchemaVersion
// and no older than MinSupportedVersion are upgraded on open.
const (
	SchemaVersion       = 3
	MinSupportedVersion = 1
)

// Upgrade migrates a store from one schema version to the next.
type Upgrade struct {
	From        int
	To          int
	Description string
	Apply       func(ctx context.Context, db *DB, progress ProgressFunc) error
}

// DefaultUpgrades is the built-in upgrade chain.
func DefaultUpgrades() []Upgrade {
	return []Upgrade{
		{
			From:        1,
			To:          2,
			Description: "rebuild secondary indices",
			Apply: func(ctx context.Context, db *DB, progress ProgressFunc) error {
				return db.RebuildSecondary(ctx, progress)
			},
		},
		{
			From:        2,
			To:          3,
			Description: "reindex reference map",
			Apply: func(ctx context.Context, db *DB, progress ProgressFunc) error {
				return db.ReindexReferenceMap(ctx, progress)
			},
		},
	}
}

// Version returns the schema version recorded in the store.
func (db *DB) Version() (int, error) {
	if db.env == nil {
		return 0, ErrClosed
	}
	var v int
	err := db.env.View(func(tx *kv.Txn) error {
		return getMeta(tx, metaVersion, &v)
	})
	return v, db.storeErr("read version", err)
}

// checkVersion reads the stored schema version and decides whether an
// upgrade must run. A store without a version is new and is stamped with
// the current one.
func (db *DB) checkVersion() (version int, upgrade bool, err error) {
	version, err = db.Version()
	if err != nil {
		return 0, false, err
	}
	if version == 0 {
		if !db.readOnly {
			if err := db.setVersion(SchemaVersion); err != nil {
				return 0, false, err
			}
		}
		return SchemaVersion, false, nil
	}
	if version < MinSupportedVersion || version > SchemaVersion {
		return version, false, &VersionError{Found: version, Min: MinSupportedVersion, Max: SchemaVersion}
	}
	if version == SchemaVersion {
		return version, false, nil
	}
	if db.readOnly {
		return version, false, &VersionError{
			Found:  version,
			Min:    MinSupportedVersion,
			Max:    SchemaVersion,
			Reason: "the store needs an upgrade and was opened read-only",
		}
	}
	if db.confirmUpgrade != nil && !db.confirmUpgrade(version, SchemaVersion) {
		return version, false, ErrUpgradeDeclined
	}
	return version, true, nil
}

// runUpgrades applies the chain from version up to SchemaVersion, recording
// the version reached after each step.
func (db *DB) runUpgrades(ctx context.Context, version int) error {
	for version < SchemaVersion {
		step, ok := db.findUpgrade(version)
		if !ok {
			return &VersionError{
				Found:  version,
				Min:    MinSupportedVersion,
				Max:    SchemaVersion,
				Reason: fmt.Sprintf("no upgrade from version %d", version),
			}
		}
		db.log.Infow("upgrading store", "from", step.From, "to", step.To, "step", step.Description)
		if err := step.Apply(ctx, db, db.upgradeProg); err != nil {
			return fmt.Errorf("genstore: upgrade %d to %d: %w", step.From, step.To, err)
		}
		if err := db.setVersion(step.To); err != nil {
			return err
		}
		version = step.To
	}
	return nil
}

func (db *DB) findUpgrade(from int) (Upgrade, bool) {
	for _, u := range db.upgrades {
		if u.From == from && u.To > from {
			return u, true
		}
	}
	return Upgrade{}, false
}

func (db *DB) setVersion(v int) error {
	return db.storeErr("write version", db.env.Update(func(tx *kv.Txn) error {
		return putMeta(tx, metaVersion, v)
	}))
}
