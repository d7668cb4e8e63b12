package migrations

import "gorm.io/gorm"

// Migration002RunRecordsSource records whether a run came from an upload or
// a storage reference.
type Migration002RunRecordsSource struct{}

func (m *Migration002RunRecordsSource) Version() string {
	return "002_run_records_source"
}

func (m *Migration002RunRecordsSource) Description() string {
	return "Add source column to run journal"
}

func (m *Migration002RunRecordsSource) Up(db *gorm.DB) error {
	return db.Exec(`ALTER TABLE run_records ADD COLUMN source VARCHAR(32)`).Error
}

func (m *Migration002RunRecordsSource) Down(db *gorm.DB) error {
	return db.Exec(`ALTER TABLE run_records DROP COLUMN source`).Error
}
