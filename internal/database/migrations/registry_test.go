package migrations

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmattsson/photocurator/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db
}

func TestAllMigrations_ReturnsExpectedCount(t *testing.T) {
	migrations := AllMigrations()
	assert.Len(t, migrations, 1)
}

func TestAllMigrations_VersionsAreUnique(t *testing.T) {
	migrations := AllMigrations()
	versions := make(map[string]bool)

	for _, m := range migrations {
		assert.False(t, versions[m.Version], "duplicate version: %s", m.Version)
		versions[m.Version] = true
	}
}

func TestAllMigrations_VersionsAreOrdered(t *testing.T) {
	migrations := AllMigrations()

	for i := 1; i < len(migrations); i++ {
		assert.Less(t, migrations[i-1].Version, migrations[i].Version,
			"migrations should be in ascending version order")
	}
}

func TestMigrator_Up_AllMigrations(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	assert.True(t, db.Migrator().HasTable("items"))
	assert.True(t, db.Migrator().HasTable("item_paths"))
	assert.True(t, db.Migrator().HasTable("faces"))
	assert.True(t, db.Migrator().HasTable("persons"))
	assert.True(t, db.Migrator().HasTable("events"))
	assert.True(t, db.Migrator().HasTable("event_members"))
}

func TestMigrator_Up_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	err = migrator.Up(ctx)
	require.NoError(t, err)
}

func TestMigrator_Status(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	statuses, err := migrator.Status(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 1)
	assert.False(t, statuses[0].Applied)
	assert.Nil(t, statuses[0].AppliedAt)

	err = migrator.Up(ctx)
	require.NoError(t, err)

	statuses, err = migrator.Status(ctx)
	require.NoError(t, err)
	assert.True(t, statuses[0].Applied)
	assert.NotNil(t, statuses[0].AppliedAt)
}

func TestMigrator_Down_RollsBackSchema(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable("items"))

	err = migrator.Down(ctx)
	require.NoError(t, err)
	assert.False(t, db.Migrator().HasTable("items"))
	assert.False(t, db.Migrator().HasTable("faces"))
}

func TestMigrator_Pending(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	pending, err := migrator.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	err = migrator.Up(ctx)
	require.NoError(t, err)

	pending, err = migrator.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 0)
}

func TestMigrations_CanInsertItem(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	item := &models.Item{
		ItemKey:     "abc123",
		PrimaryPath: "/photos/abc.jpg",
		Size:        1024,
		MimeType:    "image/jpeg",
	}
	err = db.Create(item).Error
	require.NoError(t, err)

	var loaded models.Item
	err = db.First(&loaded, "item_key = ?", "abc123").Error
	require.NoError(t, err)
	assert.Equal(t, "/photos/abc.jpg", loaded.PrimaryPath)
}

func TestMigrations_FacePersonRelationship(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	migrator := NewMigrator(db, nil)
	migrator.RegisterAll(AllMigrations())

	err := migrator.Up(ctx)
	require.NoError(t, err)

	item := &models.Item{ItemKey: "keyabc", PrimaryPath: "/photos/a.jpg", Size: 10}
	require.NoError(t, db.Create(item).Error)

	person := &models.Person{}
	require.NoError(t, db.Create(person).Error)
	require.False(t, person.ID.IsZero())

	face := &models.Face{
		ItemKey:  item.ItemKey,
		BBoxX:    0.1,
		BBoxY:    0.1,
		BBoxW:    0.2,
		BBoxH:    0.2,
		PersonID: &person.ID,
	}
	require.NoError(t, db.Create(face).Error)

	var loaded models.Face
	require.NoError(t, db.First(&loaded, "id = ?", face.ID).Error)
	assert.Equal(t, person.ID, *loaded.PersonID)
}
