// Package storetest opens throwaway gorm stores on in-memory SQLite for tests.
package storetest

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smartbrief/core/internal/database"
	"github.com/smartbrief/core/internal/models"
	"github.com/smartbrief/core/internal/store/gormstore"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open returns a migrated store backed by a private in-memory database.
func Open(t testing.TB) *gormstore.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:storetest_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// A single connection serializes transactions the way row locks would.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	s := gormstore.New(db)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// SeedUser inserts an active user with the given role and balance.
func SeedUser(t testing.TB, s *gormstore.Store, role models.Role, credits int) *models.UserModel {
	t.Helper()

	user := &models.UserModel{
		Name:     string(role) + " user",
		Email:    fmt.Sprintf("%s-%d@example.com", role, seq.Add(1)),
		Role:     role,
		Credits:  credits,
		IsActive: true,
	}
	require.NoError(t, s.DB().Create(user).Error)
	if credits == 0 {
		// gorm skips zero values that carry a column default.
		require.NoError(t, s.DB().Model(user).UpdateColumn("credits", 0).Error)
	}
	return user
}
