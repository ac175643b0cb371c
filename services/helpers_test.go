package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"teamdesk/models"
	"teamdesk/testutil"
)

var fixedNow = time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

// failNthCreate makes the nth insert into table fail from then on
func failNthCreate(t *testing.T, db *gorm.DB, table string, n int) {
	t.Helper()
	seen := 0
	err := db.Callback().Create().Before("gorm:create").Register("test:fail_nth_"+table, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		seen++
		if seen >= n {
			tx.AddError(errors.New("simulated write failure"))
		}
	})
	require.NoError(t, err)
}

func count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func requireKind(t *testing.T, err error, k Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equalf(t, k, KindOf(err), "unexpected error: %v", err)
}

type world struct {
	db        *gorm.DB
	admin     *models.User
	teamAdmin *models.User
	team      *models.Team
	employee  *models.User
}

// newWorld seeds an admin, a team with a fully permitted team admin and one employee
func newWorld(t *testing.T) *world {
	db := testutil.NewDB(t)
	w := &world{db: db}
	w.admin = testutil.CreateUser(t, db, "Ada Admin", models.RoleAdmin)
	w.team = testutil.CreateTeam(t, db, "Alpha")
	w.teamAdmin = testutil.CreateUser(t, db, "Tom Lead", models.RoleTeamAdmin, testutil.WithTeam(w.team.ID))
	testutil.AssignAdmin(t, db, w.teamAdmin.ID, w.team.ID, models.AllPermissions())
	w.employee = testutil.CreateUser(t, db, "Eve Worker", models.RoleEmployee, testutil.WithTeam(w.team.ID))
	return w
}

func modelID(id uint) gorm.Model { return gorm.Model{ID: id} }
