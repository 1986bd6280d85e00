package students

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	database "schoolfinance_backend/internals/databases"
	"schoolfinance_backend/internals/features/finance/fees/model"
)

func TestSeedStudentsFromJSON_SkipsExisting(t *testing.T) {
	db, err := database.OpenMigratedSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	path := filepath.Join("..", "data", "students.json")

	n, err := SeedStudentsFromJSON(db, zap.NewNop(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = SeedStudentsFromJSON(db, zap.NewNop(), path)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var inactive model.StudentModel
	require.NoError(t, db.Where("student_name = ?", "Citra Lestari").Take(&inactive).Error)
	assert.False(t, inactive.StudentIsActive)
	assert.Equal(t, model.StudentTypeDayScholar, inactive.StudentType)
}

func TestSeedStudentsFromJSON_RejectsIncompleteRow(t *testing.T) {
	db, err := database.OpenMigratedSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	path := filepath.Join(t.TempDir(), "students.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"student_name":"No School","student_type":"BOARDER"}]`), 0o600))

	_, err = SeedStudentsFromJSON(db, zap.NewNop(), path)
	assert.Error(t, err)
}
