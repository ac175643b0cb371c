package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"teamdesk/models"
	"teamdesk/testutil"
)

func TestCreateTeam_AttachesAdmin(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "Ada Admin", models.RoleAdmin)
	u1 := testutil.CreateUser(t, db, "Uma Lead", models.RoleTeamAdmin)
	reg := NewTeamRegistry(db)

	team, err := reg.CreateTeam(context.Background(), ActorFromUser(admin), TeamInput{Name: "Alpha", TeamAdminID: &u1.ID})
	require.NoError(t, err)

	assert.Equal(t, int64(1), count(t, db, &models.Team{}, "name = ?", "Alpha"))
	assert.Equal(t, int64(1), count(t, db, &models.TeamAdminAssignment{}, "team_admin_id = ? AND team_id = ?", u1.ID, team.ID))

	perm, ok, err := reg.Permissions(context.Background(), u1.ID, team.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.AllPermissions(), perm.PermissionSet)

	fresh := testutil.Reload(t, db, u1)
	require.NotNil(t, fresh.TeamID)
	assert.Equal(t, team.ID, *fresh.TeamID)
	require.NotNil(t, fresh.ParentAdminID)
	assert.Equal(t, admin.ID, *fresh.ParentAdminID)
}

func TestCreateTeam_KeepsExistingPlacement(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "Ada Admin", models.RoleAdmin)
	home := testutil.CreateTeam(t, db, "Home")
	u1 := testutil.CreateUser(t, db, "Uma Lead", models.RoleTeamAdmin, testutil.WithTeam(home.ID))
	reg := NewTeamRegistry(db)

	team, err := reg.CreateTeam(context.Background(), ActorFromUser(admin), TeamInput{Name: "Beta", TeamAdminID: &u1.ID})
	require.NoError(t, err)

	fresh := testutil.Reload(t, db, u1)
	assert.Equal(t, home.ID, *fresh.TeamID)
	assert.Equal(t, int64(1), count(t, db, &models.TeamAdminAssignment{}, "team_admin_id = ? AND team_id = ?", u1.ID, team.ID))
}

func TestCreateTeam_Rejections(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "Ada Admin", models.RoleAdmin)
	testutil.CreateTeam(t, db, "Taken")
	inactive := testutil.CreateUser(t, db, "Ivy Gone", models.RoleTeamAdmin, testutil.WithStatus(models.StatusInactive))
	employee := testutil.CreateUser(t, db, "Eve Worker", models.RoleEmployee)
	missing := uint(9999)
	reg := NewTeamRegistry(db)

	tests := []struct {
		name string
		in   TeamInput
		want Kind
	}{
		{name: "empty name", in: TeamInput{Name: "   "}, want: KindValidation},
		{name: "duplicate name", in: TeamInput{Name: "Taken"}, want: KindValidation},
		{name: "inactive admin", in: TeamInput{Name: "One", TeamAdminID: &inactive.ID}, want: KindReference},
		{name: "admin with wrong role", in: TeamInput{Name: "Two", TeamAdminID: &employee.ID}, want: KindReference},
		{name: "unknown admin", in: TeamInput{Name: "Three", TeamAdminID: &missing}, want: KindReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.CreateTeam(context.Background(), ActorFromUser(admin), tt.in)
			requireKind(t, err, tt.want)
		})
	}

	assert.Equal(t, int64(1), count(t, db, &models.Team{}, ""))
	assert.Equal(t, int64(0), count(t, db, &models.TeamAdminAssignment{}, ""))
	assert.Equal(t, int64(0), count(t, db, &models.TeamAdminPermission{}, ""))
}

func TestUpdateTeam_RegrantResetsPermissions(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "Ada Admin", models.RoleAdmin)
	u1 := testutil.CreateUser(t, db, "Uma Lead", models.RoleTeamAdmin)
	reg := NewTeamRegistry(db)
	ctx := context.Background()
	actor := ActorFromUser(admin)

	team, err := reg.CreateTeam(ctx, actor, TeamInput{Name: "Alpha", Description: "d", TeamAdminID: &u1.ID})
	require.NoError(t, err)
	_, err = reg.SetPermissions(ctx, u1.ID, team.ID, models.PermissionSet{CanViewReports: true})
	require.NoError(t, err)

	updated, err := reg.UpdateTeam(ctx, actor, team.ID, TeamInput{Name: "Alpha", Description: "d"})
	require.NoError(t, err)
	assert.Nil(t, updated.PrimaryTeamAdminID)
	assert.Equal(t, int64(0), count(t, db, &models.TeamAdminAssignment{}, "team_id = ?", team.ID))
	_, ok, err := reg.Permissions(ctx, u1.ID, team.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	// detaching leaves the old admin placed on the team
	assert.Equal(t, team.ID, *testutil.Reload(t, db, u1).TeamID)

	updated, err = reg.UpdateTeam(ctx, actor, team.ID, TeamInput{Name: "Alpha", Description: "d", TeamAdminID: &u1.ID})
	require.NoError(t, err)
	require.NotNil(t, updated.PrimaryTeamAdminID)
	assert.Equal(t, u1.ID, *updated.PrimaryTeamAdminID)

	perm, ok, err := reg.Permissions(ctx, u1.ID, team.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.AllPermissions(), perm.PermissionSet)
}

func TestUpdateTeam_SwapIsAtomic(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "Ada Admin", models.RoleAdmin)
	oldLead := testutil.CreateUser(t, db, "Olga Lead", models.RoleTeamAdmin)
	newLead := testutil.CreateUser(t, db, "Nina Lead", models.RoleTeamAdmin)
	reg := NewTeamRegistry(db)
	ctx := context.Background()

	team, err := reg.CreateTeam(ctx, ActorFromUser(admin), TeamInput{Name: "Alpha", TeamAdminID: &oldLead.ID})
	require.NoError(t, err)

	failNthCreate(t, db, "team_admin_permissions", 1)
	_, err = reg.UpdateTeam(ctx, ActorFromUser(admin), team.ID, TeamInput{Name: "Renamed", TeamAdminID: &newLead.ID})
	requireKind(t, err, KindPersistence)

	var fresh models.Team
	require.NoError(t, db.First(&fresh, team.ID).Error)
	assert.Equal(t, "Alpha", fresh.Name)
	assert.Equal(t, oldLead.ID, *fresh.PrimaryTeamAdminID)
	assert.Equal(t, int64(1), count(t, db, &models.TeamAdminAssignment{}, "team_admin_id = ? AND team_id = ?", oldLead.ID, team.ID))
	assert.Equal(t, int64(1), count(t, db, &models.TeamAdminPermission{}, "user_id = ? AND team_id = ?", oldLead.ID, team.ID))
	assert.Equal(t, int64(0), count(t, db, &models.TeamAdminAssignment{}, "team_admin_id = ?", newLead.ID))
	assert.Nil(t, testutil.Reload(t, db, newLead).TeamID)
}

func TestUpdateTeam_NameCollision(t *testing.T) {
	w := newWorld(t)
	testutil.CreateTeam(t, w.db, "Beta")
	reg := NewTeamRegistry(w.db)

	_, err := reg.UpdateTeam(context.Background(), ActorFromUser(w.admin), w.team.ID, TeamInput{Name: "Beta"})
	requireKind(t, err, KindValidation)

	_, err = reg.UpdateTeam(context.Background(), ActorFromUser(w.admin), w.team.ID, TeamInput{Name: "Alpha", Description: "same name is fine"})
	require.NoError(t, err)
}

func TestUpdateTeam_TeamAdminScope(t *testing.T) {
	w := newWorld(t)
	beta := testutil.CreateTeam(t, w.db, "Beta")
	betaLead := testutil.CreateUser(t, w.db, "Bea Lead", models.RoleTeamAdmin, testutil.WithTeam(beta.ID))
	testutil.AssignAdmin(t, w.db, betaLead.ID, beta.ID, models.AllPermissions())
	require.NoError(t, w.db.Model(beta).Update("primary_team_admin_id", betaLead.ID).Error)
	require.NoError(t, w.db.Model(w.team).Update("primary_team_admin_id", w.teamAdmin.ID).Error)
	reg := NewTeamRegistry(w.db)
	ctx := context.Background()
	lead := ActorFromUser(w.teamAdmin)

	t.Run("cannot take over another team", func(t *testing.T) {
		_, err := reg.UpdateTeam(ctx, lead, beta.ID, TeamInput{Name: "Beta", TeamAdminID: &w.teamAdmin.ID})
		requireKind(t, err, KindNoop)

		ids, err := reg.ManagedTeamIDs(ctx, w.teamAdmin.ID)
		require.NoError(t, err)
		assert.Equal(t, []uint{w.team.ID}, ids)
		assert.Equal(t, int64(1), count(t, w.db, &models.TeamAdminAssignment{}, "team_id = ? AND team_admin_id = ?", beta.ID, betaLead.ID))
	})

	t.Run("cannot rename another team", func(t *testing.T) {
		_, err := reg.UpdateTeam(ctx, lead, beta.ID, TeamInput{Name: "Mine now", TeamAdminID: &betaLead.ID})
		requireKind(t, err, KindNoop)
		assert.Equal(t, int64(1), count(t, w.db, &models.Team{}, "name = ?", "Beta"))
	})

	t.Run("edits own team without touching the admin", func(t *testing.T) {
		updated, err := reg.UpdateTeam(ctx, lead, w.team.ID, TeamInput{Name: "Alpha Squad", TeamAdminID: &w.teamAdmin.ID})
		require.NoError(t, err)
		assert.Equal(t, "Alpha Squad", updated.Name)
	})

	t.Run("cannot swap the primary admin of own team", func(t *testing.T) {
		_, err := reg.UpdateTeam(ctx, lead, w.team.ID, TeamInput{Name: "Alpha Squad", TeamAdminID: &betaLead.ID})
		requireKind(t, err, KindNoop)
		_, err = reg.UpdateTeam(ctx, lead, w.team.ID, TeamInput{Name: "Alpha Squad"})
		requireKind(t, err, KindNoop)
		assert.Equal(t, int64(1), count(t, w.db, &models.TeamAdminPermission{}, "team_id = ? AND user_id = ?", w.team.ID, w.teamAdmin.ID))
	})

	t.Run("needs can_edit", func(t *testing.T) {
		_, err := reg.SetPermissions(ctx, w.teamAdmin.ID, w.team.ID, models.PermissionSet{CanAssign: true})
		require.NoError(t, err)
		_, err = reg.UpdateTeam(ctx, lead, w.team.ID, TeamInput{Name: "Renamed", TeamAdminID: &w.teamAdmin.ID})
		requireKind(t, err, KindNoop)
	})

	t.Run("employees cannot edit", func(t *testing.T) {
		_, err := reg.UpdateTeam(ctx, ActorFromUser(w.employee), w.team.ID, TeamInput{Name: "Renamed"})
		requireKind(t, err, KindNoop)
	})
}

func TestDeleteTeam(t *testing.T) {
	t.Run("with members", func(t *testing.T) {
		w := newWorld(t)
		reg := NewTeamRegistry(w.db)

		err := reg.DeleteTeam(context.Background(), w.team.ID)
		requireKind(t, err, KindConflict)
		assert.Equal(t, int64(1), count(t, w.db, &models.Team{}, "id = ?", w.team.ID))
		assert.Equal(t, int64(1), count(t, w.db, &models.TeamAdminPermission{}, "team_id = ?", w.team.ID))
		assert.Equal(t, int64(1), count(t, w.db, &models.TeamAdminAssignment{}, "team_id = ?", w.team.ID))
	})

	t.Run("empty team", func(t *testing.T) {
		db := testutil.NewDB(t)
		team := testutil.CreateTeam(t, db, "Empty")
		lead := testutil.CreateUser(t, db, "Lee Lead", models.RoleTeamAdmin)
		testutil.AssignAdmin(t, db, lead.ID, team.ID, models.AllPermissions())
		reg := NewTeamRegistry(db)

		require.NoError(t, reg.DeleteTeam(context.Background(), team.ID))
		assert.Equal(t, int64(0), count(t, db, &models.Team{}, ""))
		assert.Equal(t, int64(0), count(t, db, &models.TeamAdminPermission{}, ""))
		assert.Equal(t, int64(0), count(t, db, &models.TeamAdminAssignment{}, ""))
	})

	t.Run("unknown team", func(t *testing.T) {
		db := testutil.NewDB(t)
		requireKind(t, NewTeamRegistry(db).DeleteTeam(context.Background(), 42), KindNotFound)
	})

	t.Run("member count runs inside the delete transaction", func(t *testing.T) {
		db := testutil.NewDB(t)
		team := testutil.CreateTeam(t, db, "Empty")
		var countsInTx, countsOutside int
		require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:track_member_count", func(tx *gorm.DB) {
			if tx.Statement.Table != "users" {
				return
			}
			if _, ok := tx.Statement.ConnPool.(gorm.TxCommitter); ok {
				countsInTx++
			} else {
				countsOutside++
			}
		}))

		require.NoError(t, NewTeamRegistry(db).DeleteTeam(context.Background(), team.ID))
		assert.Equal(t, 1, countsInTx)
		assert.Zero(t, countsOutside)
	})
}

func TestAddMember(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, w *world) (actor Actor, employeeID uint)
		wantErr Kind
	}{
		{
			name: "unassigned employee",
			setup: func(t *testing.T, w *world) (Actor, uint) {
				e := testutil.CreateUser(t, w.db, "New Hire", models.RoleEmployee)
				return ActorFromUser(w.admin), e.ID
			},
		},
		{
			name: "team admin with add permission",
			setup: func(t *testing.T, w *world) (Actor, uint) {
				e := testutil.CreateUser(t, w.db, "New Hire", models.RoleEmployee)
				return ActorFromUser(w.teamAdmin), e.ID
			},
		},
		{
			name: "already on a team",
			setup: func(t *testing.T, w *world) (Actor, uint) {
				other := testutil.CreateTeam(t, w.db, "Other")
				e := testutil.CreateUser(t, w.db, "Taken Hire", models.RoleEmployee, testutil.WithTeam(other.ID))
				return ActorFromUser(w.admin), e.ID
			},
			wantErr: KindNoop,
		},
		{
			name: "not an employee",
			setup: func(t *testing.T, w *world) (Actor, uint) {
				lead := testutil.CreateUser(t, w.db, "Other Lead", models.RoleTeamAdmin)
				return ActorFromUser(w.admin), lead.ID
			},
			wantErr: KindNoop,
		},
		{
			name: "inactive employee",
			setup: func(t *testing.T, w *world) (Actor, uint) {
				e := testutil.CreateUser(t, w.db, "Gone Hire", models.RoleEmployee, testutil.WithStatus(models.StatusInactive))
				return ActorFromUser(w.admin), e.ID
			},
			wantErr: KindNoop,
		},
		{
			name: "team admin without add permission",
			setup: func(t *testing.T, w *world) (Actor, uint) {
				require.NoError(t, w.db.Model(&models.TeamAdminPermission{}).
					Where("user_id = ?", w.teamAdmin.ID).Update("can_add_members", false).Error)
				e := testutil.CreateUser(t, w.db, "New Hire", models.RoleEmployee)
				return ActorFromUser(w.teamAdmin), e.ID
			},
			wantErr: KindNoop,
		},
		{
			name: "employee acting",
			setup: func(t *testing.T, w *world) (Actor, uint) {
				e := testutil.CreateUser(t, w.db, "New Hire", models.RoleEmployee)
				return ActorFromUser(w.employee), e.ID
			},
			wantErr: KindNoop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			actor, employeeID := tt.setup(t, w)
			before := testutil.Reload(t, w.db, &models.User{Model: modelID(employeeID)})

			err := NewTeamRegistry(w.db).AddMember(context.Background(), actor, w.team.ID, employeeID)
			after := testutil.Reload(t, w.db, &models.User{Model: modelID(employeeID)})

			if tt.wantErr != "" {
				requireKind(t, err, tt.wantErr)
				assert.Equal(t, before.TeamID, after.TeamID)
				assert.Equal(t, before.ParentAdminID, after.ParentAdminID)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, after.TeamID)
			assert.Equal(t, w.team.ID, *after.TeamID)
			require.NotNil(t, after.ParentAdminID)
			assert.Equal(t, actor.UserID, *after.ParentAdminID)
		})
	}
}

func TestRemoveMember(t *testing.T) {
	t.Run("clears placement and every permission row", func(t *testing.T) {
		w := newWorld(t)
		other := testutil.CreateTeam(t, w.db, "Unrelated")
		// the employee also holds a grant on an unrelated team
		require.NoError(t, w.db.Create(&models.TeamAdminPermission{UserID: w.employee.ID, TeamID: other.ID, PermissionSet: models.AllPermissions()}).Error)
		reg := NewTeamRegistry(w.db)

		require.NoError(t, reg.RemoveMember(context.Background(), ActorFromUser(w.admin), w.team.ID, w.employee.ID))

		fresh := testutil.Reload(t, w.db, w.employee)
		assert.Nil(t, fresh.TeamID)
		assert.Nil(t, fresh.ParentAdminID)
		assert.Equal(t, int64(0), count(t, w.db, &models.TeamAdminPermission{}, "user_id = ?", w.employee.ID))
	})

	t.Run("wrong team is a no-op", func(t *testing.T) {
		w := newWorld(t)
		other := testutil.CreateTeam(t, w.db, "Other")
		reg := NewTeamRegistry(w.db)

		err := reg.RemoveMember(context.Background(), ActorFromUser(w.admin), other.ID, w.employee.ID)
		requireKind(t, err, KindNoop)
		assert.Equal(t, w.team.ID, *testutil.Reload(t, w.db, w.employee).TeamID)
	})

	t.Run("wrong team keeps the member's admin grants", func(t *testing.T) {
		w := newWorld(t)
		beta := testutil.CreateTeam(t, w.db, "Beta")
		betaLead := testutil.CreateUser(t, w.db, "Bea Lead", models.RoleTeamAdmin, testutil.WithTeam(beta.ID))
		testutil.AssignAdmin(t, w.db, betaLead.ID, beta.ID, models.AllPermissions())
		reg := NewTeamRegistry(w.db)

		err := reg.RemoveMember(context.Background(), ActorFromUser(w.teamAdmin), w.team.ID, betaLead.ID)
		requireKind(t, err, KindNoop)
		assert.Equal(t, int64(1), count(t, w.db, &models.TeamAdminPermission{}, "user_id = ?", betaLead.ID))
		assert.Equal(t, beta.ID, *testutil.Reload(t, w.db, betaLead).TeamID)
	})

	t.Run("team admin of another team", func(t *testing.T) {
		w := newWorld(t)
		other := testutil.CreateTeam(t, w.db, "Other")
		lead := testutil.CreateUser(t, w.db, "Other Lead", models.RoleTeamAdmin)
		testutil.AssignAdmin(t, w.db, lead.ID, other.ID, models.AllPermissions())

		err := NewTeamRegistry(w.db).RemoveMember(context.Background(), ActorFromUser(lead), w.team.ID, w.employee.ID)
		requireKind(t, err, KindNoop)
		assert.NotNil(t, testutil.Reload(t, w.db, w.employee).TeamID)
	})
}

func TestPermissions(t *testing.T) {
	w := newWorld(t)
	reg := NewTeamRegistry(w.db)
	ctx := context.Background()

	ok, err := reg.HasPermission(ctx, w.teamAdmin.ID, w.team.ID, models.CanArchive)
	require.NoError(t, err)
	assert.True(t, ok)

	perm, err := reg.SetPermissions(ctx, w.teamAdmin.ID, w.team.ID, models.PermissionSet{CanAssign: true})
	require.NoError(t, err)
	assert.True(t, perm.CanAssign)
	assert.False(t, perm.CanArchive)

	ok, err = reg.HasPermission(ctx, w.teamAdmin.ID, w.team.ID, models.CanArchive)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = reg.SetPermissions(ctx, w.employee.ID, w.team.ID, models.AllPermissions())
	requireKind(t, err, KindNotFound)

	require.NoError(t, reg.GrantAllPermissions(ctx, w.teamAdmin.ID, w.team.ID))
	ok, err = reg.HasPermission(ctx, w.teamAdmin.ID, w.team.ID, models.CanArchive)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), count(t, w.db, &models.TeamAdminPermission{}, "user_id = ?", w.teamAdmin.ID))
}

func TestListTeams_Scoped(t *testing.T) {
	w := newWorld(t)
	beta := testutil.CreateTeam(t, w.db, "Beta")
	testutil.CreateUser(t, w.db, "Bob Beta", models.RoleEmployee, testutil.WithTeam(beta.ID))
	reg := NewTeamRegistry(w.db)
	ctx := context.Background()

	all, err := reg.ListTeams(ctx, ActorFromUser(w.admin))
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alpha", all[0].Name)
	assert.Equal(t, int64(2), all[0].MemberCount)
	assert.Equal(t, int64(1), all[1].MemberCount)

	mine, err := reg.ListTeams(ctx, ActorFromUser(w.teamAdmin))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, w.team.ID, mine[0].ID)

	_, err = reg.GetTeam(ctx, ActorFromUser(w.teamAdmin), beta.ID)
	requireKind(t, err, KindNotFound)

	detail, err := reg.GetTeam(ctx, ActorFromUser(w.admin), w.team.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Team.Members, 2)
	assert.Len(t, detail.Assignments, 1)
	assert.Len(t, detail.Permissions, 1)
}
