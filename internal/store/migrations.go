package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Publishes table - one row per command sent to the lamp
		`CREATE TABLE IF NOT EXISTS publishes (
			id TEXT PRIMARY KEY,
			finger_count INTEGER NOT NULL,
			level INTEGER NOT NULL CHECK(level BETWEEN 0 AND 4095),
			topic TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_publishes_created_at ON publishes(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
