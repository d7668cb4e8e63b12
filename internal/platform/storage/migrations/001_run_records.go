package migrations

import "gorm.io/gorm"

// Migration001RunRecords creates the run journal table.
type Migration001RunRecords struct{}

func (m *Migration001RunRecords) Version() string {
	return "001_run_records"
}

func (m *Migration001RunRecords) Description() string {
	return "Create run journal table"
}

func (m *Migration001RunRecords) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS run_records (
			id VARCHAR(64) PRIMARY KEY,
			request_id VARCHAR(64) NOT NULL,
			operation VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			error_kind VARCHAR(64),
			labels JSON,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_run_records_created_at ON run_records(created_at)`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE INDEX IF NOT EXISTS idx_run_records_request_id ON run_records(request_id)`).Error
}

func (m *Migration001RunRecords) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS run_records`).Error
}
