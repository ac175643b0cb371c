package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/models"
	"teamdesk/testutil"
)

func TestCreateUser(t *testing.T) {
	w := newWorld(t)
	dir := NewUserDirectory(w.db)
	ctx := context.Background()

	u, err := dir.CreateUser(ctx, ActorFromUser(w.admin), CreateUserInput{
		FullName: "Nora New",
		Email:    " Nora@Example.com ",
		Password: "correct horse",
		Role:     models.RoleEmployee,
	})
	require.NoError(t, err)
	assert.Equal(t, "nora@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)
	require.NotNil(t, u.ParentAdminID)
	assert.Equal(t, w.admin.ID, *u.ParentAdminID)

	tests := []struct {
		name  string
		actor Actor
		in    CreateUserInput
		want  Kind
	}{
		{name: "duplicate email", actor: ActorFromUser(w.admin), in: CreateUserInput{FullName: "x", Email: "nora@example.com", Password: "12345678", Role: models.RoleEmployee}, want: KindConflict},
		{name: "bad email", actor: ActorFromUser(w.admin), in: CreateUserInput{FullName: "x", Email: "not-an-email", Password: "12345678", Role: models.RoleEmployee}, want: KindValidation},
		{name: "bad role", actor: ActorFromUser(w.admin), in: CreateUserInput{FullName: "x", Email: "a@example.com", Password: "12345678", Role: "owner"}, want: KindValidation},
		{name: "team admin cannot create", actor: ActorFromUser(w.teamAdmin), in: CreateUserInput{FullName: "x", Email: "b@example.com", Password: "12345678", Role: models.RoleEmployee}, want: KindNoop},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.CreateUser(ctx, tt.actor, tt.in)
			requireKind(t, err, tt.want)
		})
	}
}

func TestAuthenticate(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.CreateUser(t, db, "Lara Login", models.RoleEmployee, testutil.WithPassword("s3cret-pass"))
	gone := testutil.CreateUser(t, db, "Gone User", models.RoleEmployee, testutil.WithPassword("s3cret-pass"), testutil.WithStatus(models.StatusInactive))
	dir := NewUserDirectory(db)
	dir.now = testutil.Clock(fixedNow)
	ctx := context.Background()

	got, err := dir.Authenticate(ctx, "LARA.LOGIN@example.com", "s3cret-pass", LoginInfo{IPAddress: "10.0.0.1", UserAgent: "curl"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	var login models.UserLogin
	require.NoError(t, db.Where("user_id = ?", u.ID).First(&login).Error)
	assert.Equal(t, "10.0.0.1", login.IPAddress)
	assert.True(t, login.LoginTime.Equal(fixedNow))

	for _, tc := range []struct{ email, password string }{
		{u.Email, "wrong"},
		{gone.Email, "s3cret-pass"},
		{"nobody@example.com", "s3cret-pass"},
	} {
		_, err := dir.Authenticate(ctx, tc.email, tc.password, LoginInfo{})
		assert.True(t, errors.Is(err, ErrInvalidCredentials), tc.email)
	}
	assert.Equal(t, int64(1), count(t, db, &models.UserLogin{}, ""))
}

func TestSetStatusRevokesTokens(t *testing.T) {
	w := newWorld(t)
	dir := NewUserDirectory(w.db)
	ctx := context.Background()

	require.NoError(t, dir.SetStatus(ctx, ActorFromUser(w.admin), w.employee.ID, models.StatusInactive))
	fresh := testutil.Reload(t, w.db, w.employee)
	assert.Equal(t, models.StatusInactive, fresh.Status)
	assert.Equal(t, w.employee.TokenVersion+1, fresh.TokenVersion)

	requireKind(t, dir.SetStatus(ctx, ActorFromUser(w.admin), w.admin.ID, models.StatusInactive), KindValidation)
	requireKind(t, dir.SetStatus(ctx, ActorFromUser(w.teamAdmin), w.employee.ID, models.StatusActive), KindNoop)
	requireKind(t, dir.SetStatus(ctx, ActorFromUser(w.admin), 9999, models.StatusActive), KindNotFound)
}

func TestListUsers_Scoped(t *testing.T) {
	w := newWorld(t)
	beta := testutil.CreateTeam(t, w.db, "Beta")
	testutil.CreateUser(t, w.db, "Bob Beta", models.RoleEmployee, testutil.WithTeam(beta.ID))
	testutil.CreateUser(t, w.db, "Free Agent", models.RoleEmployee)
	dir := NewUserDirectory(w.db)
	ctx := context.Background()

	all, err := dir.ListUsers(ctx, ActorFromUser(w.admin), UserFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	visible, err := dir.ListUsers(ctx, ActorFromUser(w.teamAdmin), UserFilter{Role: models.RoleEmployee})
	require.NoError(t, err)
	names := []string{}
	for _, u := range visible {
		names = append(names, u.FullName)
	}
	assert.ElementsMatch(t, []string{"Eve Worker", "Free Agent"}, names)

	_, err = dir.ListUsers(ctx, ActorFromUser(w.employee), UserFilter{})
	requireKind(t, err, KindNoop)
}
