package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teamdesk/middleware"
	"teamdesk/models"
	"teamdesk/services"
	"teamdesk/testutil"
)

func nullEntry() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

// as injects the actor Protected would normally set
func as(user *models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.LocalUser, user)
		c.Locals(middleware.LocalActor, services.ActorFromUser(user))
		return c.Next()
	}
}

func call(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestTeamController(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, "Ada Admin", models.RoleAdmin)
	lead := testutil.CreateUser(t, db, "Tom Lead", models.RoleTeamAdmin)
	tc := NewTeamController(services.NewTeamRegistry(db), nullEntry())

	app := fiber.New()
	app.Post("/teams", as(admin), tc.CreateTeam)
	app.Get("/teams/:id/permissions/:userId", as(admin), tc.GetPermissions)
	app.Put("/teams/:id/permissions/:userId", as(admin), tc.SetPermissions)
	app.Delete("/teams/:id", as(admin), tc.DeleteTeam)
	app.Get("/teams/:id/members", as(admin), tc.Members)
	app.Put("/teams/:id", as(lead), tc.UpdateTeam)

	status, body := call(t, app, "POST", "/teams", `{"name":"Alpha","team_admin_id":`+itoa(lead.ID)+`}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	teamID := uint(body["data"].(map[string]interface{})["id"].(float64))

	status, body = call(t, app, "POST", "/teams", `{"name":"Alpha"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["error"], "already exists")

	status, body = call(t, app, "POST", "/teams", `{"description":"no name"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "name is required", body["error"])

	status, _ = call(t, app, "POST", "/teams", `{not json`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	path := "/teams/" + itoa(teamID) + "/permissions/" + itoa(lead.ID)
	status, body = call(t, app, "GET", path, "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["data"].(map[string]interface{})["can_archive"])

	status, body = call(t, app, "PUT", path, `{"can_assign":true,"can_view_reports":true}`)
	require.Equal(t, fiber.StatusOK, status, body)
	perm := body["data"].(map[string]interface{})
	assert.Equal(t, true, perm["can_assign"])
	assert.Equal(t, false, perm["can_archive"])

	status, _ = call(t, app, "GET", "/teams/"+itoa(teamID)+"/permissions/999", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = call(t, app, "GET", "/teams/"+itoa(teamID)+"/members", "")
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	members := body["data"].(map[string]interface{})["members"].([]interface{})
	assert.Len(t, members, 1)

	// the lead's grant above dropped can_edit
	status, _ = call(t, app, "PUT", "/teams/"+itoa(teamID), `{"name":"Renamed","team_admin_id":`+itoa(lead.ID)+`}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, body = call(t, app, "POST", "/teams", `{"name":"Beta"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	betaID := uint(body["data"].(map[string]interface{})["id"].(float64))
	status, _ = call(t, app, "PUT", "/teams/"+itoa(betaID), `{"name":"Beta","team_admin_id":`+itoa(lead.ID)+`}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)

	status, _ = call(t, app, "DELETE", "/teams/abc", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestMessageController(t *testing.T) {
	db := testutil.NewDB(t)
	tom := testutil.CreateUser(t, db, "Tom Lead", models.RoleTeamAdmin)
	eve := testutil.CreateUser(t, db, "Eve Worker", models.RoleEmployee)
	mc := NewMessageController(services.NewMessageStore(db, nil), nullEntry())

	app := fiber.New()
	app.Post("/messages", as(tom), mc.SendMessage)
	app.Get("/inbox", as(eve), mc.Inbox)
	app.Patch("/messages/:id/read", as(eve), mc.MarkRead)
	app.Patch("/others/:id/read", as(tom), mc.MarkRead)

	status, body := call(t, app, "POST", "/messages", `{"recipient_id":`+itoa(eve.ID)+`,"subject":"Hi","message":"Ready?"}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	msgID := uint(body["data"].(map[string]interface{})["messages"].([]interface{})[0].(map[string]interface{})["id"].(float64))

	status, _ = call(t, app, "POST", "/messages", `{"recipient_id":`+itoa(eve.ID)+`,"subject":"Hi"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = call(t, app, "POST", "/messages", `{"broadcast":"all","subject":"Hi","message":"All hands"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, "team admins cannot broadcast to everyone")

	status, body = call(t, app, "GET", "/inbox?unread=true", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["data"].(map[string]interface{})["total"])

	status, _ = call(t, app, "PATCH", "/others/"+itoa(msgID)+"/read", "")
	assert.Equal(t, fiber.StatusUnprocessableEntity, status, "only the recipient can mark a message read")

	status, _ = call(t, app, "PATCH", "/messages/"+itoa(msgID)+"/read", "")
	assert.Equal(t, fiber.StatusOK, status)

	_, body = call(t, app, "GET", "/inbox?unread=true", "")
	assert.EqualValues(t, 0, body["data"].(map[string]interface{})["total"])
}

func itoa(id uint) string {
	b, _ := json.Marshal(id)
	return string(b)
}
