package seeds

import (
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"schoolfinance_backend/internals/seeds/students"
)

// RunAllSeeds loads the JSON fixtures under dir. Every seeder skips rows that
// already exist, so it is safe on each boot.
func RunAllSeeds(db *gorm.DB, log *zap.Logger, dir string) error {
	n, err := students.SeedStudentsFromJSON(db, log, filepath.Join(dir, "students.json"))
	if err != nil {
		return err
	}
	log.Info("✅ seeds done", zap.Int("students", n))
	return nil
}
