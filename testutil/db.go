package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"teamdesk/models"
)

var dbSeq int64

// NewDB opens a private in-memory database with every table migrated
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, atomic.AddInt64(&dbSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, models.AutoMigrate(db))
	return db
}

// Clock returns a fixed time source
func Clock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// UserOpt customises a fixture user
type UserOpt func(*models.User)

func WithTeam(teamID uint) UserOpt {
	return func(u *models.User) { u.TeamID = &teamID }
}

func WithStatus(status string) UserOpt {
	return func(u *models.User) { u.Status = status }
}

func WithPassword(password string) UserOpt {
	return func(u *models.User) {
		hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		u.PasswordHash = string(hash)
	}
}

// CreateUser inserts an active user with the given role
func CreateUser(t *testing.T, db *gorm.DB, name, role string, opts ...UserOpt) *models.User {
	t.Helper()
	u := &models.User{
		Email:        strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
		PasswordHash: "x",
		FullName:     name,
		Role:         role,
		Status:       models.StatusActive,
	}
	for _, opt := range opts {
		opt(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateTeam inserts a bare team row
func CreateTeam(t *testing.T, db *gorm.DB, name string) *models.Team {
	t.Helper()
	team := &models.Team{Name: name}
	require.NoError(t, db.Create(team).Error)
	return team
}

// AssignAdmin attaches a team admin to a team with the given flags
func AssignAdmin(t *testing.T, db *gorm.DB, adminID, teamID uint, perms models.PermissionSet) {
	t.Helper()
	require.NoError(t, db.Create(&models.TeamAdminAssignment{
		TeamAdminID: adminID,
		TeamID:      teamID,
		AssignedAt:  time.Now(),
	}).Error)
	require.NoError(t, db.Create(&models.TeamAdminPermission{
		UserID:        adminID,
		TeamID:        teamID,
		PermissionSet: perms,
	}).Error)
}

// CreateTask inserts a task assigned to an employee on their team
func CreateTask(t *testing.T, db *gorm.DB, title string, assignee *models.User, creatorID uint, status string) *models.Task {
	t.Helper()
	task := &models.Task{
		Title:      title,
		AssignedTo: assignee.ID,
		CreatedBy:  creatorID,
		Priority:   models.PriorityMedium,
		Status:     status,
		TeamID:     assignee.TeamID,
	}
	require.NoError(t, db.Create(task).Error)
	return task
}

// Reload re-reads a user from the database
func Reload(t *testing.T, db *gorm.DB, u *models.User) *models.User {
	t.Helper()
	var fresh models.User
	require.NoError(t, db.First(&fresh, u.ID).Error)
	return &fresh
}
