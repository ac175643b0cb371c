package services

import "teamdesk/models"

// Actor is the authenticated identity a request runs as. The HTTP layer builds
// it from the session and passes it into every operation explicitly.
type Actor struct {
	UserID uint
	Role   string
	TeamID *uint
}

// ActorFromUser builds the request identity from a loaded user
func ActorFromUser(u *models.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role, TeamID: u.TeamID}
}

func (a Actor) IsAdmin() bool     { return a.Role == models.RoleAdmin }
func (a Actor) IsTeamAdmin() bool { return a.Role == models.RoleTeamAdmin }
func (a Actor) IsEmployee() bool  { return a.Role == models.RoleEmployee }
