// migrations.go - Datenbank-Schema-Migrationen
// Enthält: migrate(), Schema-Version-Handling

package store

import "fmt"

func (db *database) getSchemaVersion() (int, error) {
	var version int
	err := db.conn.QueryRow(`SELECT schema_version FROM meta WHERE id = 1`).Scan(&version)
	return version, err
}

// migrate führt Datenbank-Schema-Migrationen durch
func (db *database) migrate() error {
	version, err := db.getSchemaVersion()
	if err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	for version < currentSchemaVersion {
		switch version {
		default:
			// Unbekannte Version - auf aktuell setzen
			version = currentSchemaVersion
		}
	}

	return nil
}
