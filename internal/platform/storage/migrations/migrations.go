package migrations

import "gorm.io/gorm"

// Migration is a versioned schema change.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// All returns every migration in application order.
func All() []Migration {
	return []Migration{
		&Migration001RunRecords{},
		&Migration002RunRecordsSource{},
	}
}
