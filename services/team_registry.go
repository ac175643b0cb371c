package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"teamdesk/models"
)

// TeamRegistry manages teams, their members, and which team admins manage them
type TeamRegistry struct {
	db  *gorm.DB
	now func() time.Time
}

func NewTeamRegistry(db *gorm.DB) *TeamRegistry {
	return &TeamRegistry{db: db, now: time.Now}
}

// TeamInput carries the editable fields of a team
type TeamInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
	TeamAdminID *uint  `json:"team_admin_id"`
}

// TeamSummary is a team with its member count, as listed on the teams page
type TeamSummary struct {
	models.Team
	MemberCount int64 `json:"member_count"`
}

// TeamDetail is a team with its members, admin assignments and permission rows
type TeamDetail struct {
	Team        models.Team                  `json:"team"`
	Assignments []models.TeamAdminAssignment `json:"assignments"`
	Permissions []models.TeamAdminPermission `json:"permissions"`
}

// CreateTeam inserts a team and, when an admin is given, attaches that admin
// with a full permission grant. All writes happen in one transaction.
func (r *TeamRegistry) CreateTeam(ctx context.Context, actor Actor, in TeamInput) (*models.Team, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, Validation("Team name is required")
	}

	team := &models.Team{
		Name:               name,
		Description:        strings.TrimSpace(in.Description),
		PrimaryTeamAdminID: in.TeamAdminID,
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUniqueTeamName(tx, name, 0); err != nil {
			return err
		}
		if in.TeamAdminID != nil {
			if err := requireActiveTeamAdmin(tx, *in.TeamAdminID); err != nil {
				return err
			}
		}
		if err := tx.Create(team).Error; err != nil {
			return Persistence("creating team", err)
		}
		if in.TeamAdminID != nil {
			return r.attachAdmin(tx, actor, *in.TeamAdminID, team.ID)
		}
		return nil
	})
	if err != nil {
		return nil, Persistence("creating team", err)
	}
	return team, nil
}

// UpdateTeam edits a team and swaps its primary admin when the admin changes.
// The previous admin loses the assignment and permissions for this team but
// keeps their own team placement. Team admins need can_edit on the team and
// may not change its primary admin.
func (r *TeamRegistry) UpdateTeam(ctx context.Context, actor Actor, teamID uint, in TeamInput) (*models.Team, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, Validation("Team name is required")
	}
	allowed, err := r.canManage(ctx, actor, teamID, models.CanEdit)
	if err != nil {
		return nil, Persistence("checking permissions", err)
	}
	if !allowed {
		return nil, Noop("Unable to update team")
	}

	var team models.Team
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&team, teamID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return NotFound("Team not found")
			}
			return Persistence("loading team", err)
		}
		if !actor.IsAdmin() && !sameID(team.PrimaryTeamAdminID, in.TeamAdminID) {
			return Noop("Unable to update team")
		}
		if err := ensureUniqueTeamName(tx, name, team.ID); err != nil {
			return err
		}
		if in.TeamAdminID != nil {
			if err := requireActiveTeamAdmin(tx, *in.TeamAdminID); err != nil {
				return err
			}
		}

		if !sameID(team.PrimaryTeamAdminID, in.TeamAdminID) {
			if team.PrimaryTeamAdminID != nil {
				if err := detachAdmin(tx, *team.PrimaryTeamAdminID, team.ID); err != nil {
					return err
				}
			}
			if in.TeamAdminID != nil {
				if err := r.attachAdmin(tx, actor, *in.TeamAdminID, team.ID); err != nil {
					return err
				}
			}
		}

		updates := map[string]interface{}{
			"name":                  name,
			"description":           strings.TrimSpace(in.Description),
			"primary_team_admin_id": nullableID(in.TeamAdminID),
		}
		if err := tx.Model(&team).Updates(updates).Error; err != nil {
			return Persistence("updating team", err)
		}
		return tx.First(&team, team.ID).Error
	})
	if err != nil {
		return nil, Persistence("updating team", err)
	}
	return &team, nil
}

// AddMember places an unassigned active employee on a team. Any reason the
// update does not apply is reported the same way.
func (r *TeamRegistry) AddMember(ctx context.Context, actor Actor, teamID, employeeID uint) error {
	db := r.db.WithContext(ctx)
	if err := requireTeam(db, teamID); err != nil {
		return err
	}
	allowed, err := r.canManage(ctx, actor, teamID, models.CanAddMembers)
	if err != nil {
		return Persistence("checking permissions", err)
	}
	if !allowed {
		return Noop("Unable to add member")
	}

	res := db.Model(&models.User{}).
		Where("id = ? AND role = ? AND status = ? AND team_id IS NULL", employeeID, models.RoleEmployee, models.StatusActive).
		Updates(map[string]interface{}{
			"team_id":         teamID,
			"parent_admin_id": actor.UserID,
		})
	if res.Error != nil {
		return Persistence("adding member", res.Error)
	}
	if res.RowsAffected == 0 {
		return Noop("Unable to add member")
	}
	return nil
}

// RemoveMember clears a member's team placement when they are on teamID, then
// deletes every team admin permission row the user holds, on any team. When the
// member is not on teamID nothing is written.
func (r *TeamRegistry) RemoveMember(ctx context.Context, actor Actor, teamID, memberID uint) error {
	allowed, err := r.canManage(ctx, actor, teamID, models.CanAddMembers)
	if err != nil {
		return Persistence("checking permissions", err)
	}
	if !allowed {
		return Noop("Unable to remove member")
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND team_id = ?", memberID, teamID).
			Updates(map[string]interface{}{
				"team_id":         nil,
				"parent_admin_id": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return Noop("Member is not on this team")
		}
		// TODO: scope this delete to team_id once product confirms permissions
		// should survive removal from an unrelated team.
		return tx.Where("user_id = ?", memberID).Delete(&models.TeamAdminPermission{}).Error
	})
	if err != nil {
		return Persistence("removing member", err)
	}
	return nil
}

// DeleteTeam removes an empty team along with its admin assignments and permissions
func (r *TeamRegistry) DeleteTeam(ctx context.Context, teamID uint) error {
	db := r.db.WithContext(ctx)
	if err := requireTeam(db, teamID); err != nil {
		return err
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var members int64
		if err := tx.Model(&models.User{}).Where("team_id = ?", teamID).Count(&members).Error; err != nil {
			return Persistence("counting team members", err)
		}
		if members > 0 {
			return Conflict("Cannot delete a team that still has %d member(s)", members)
		}
		if err := tx.Where("team_id = ?", teamID).Delete(&models.TeamAdminPermission{}).Error; err != nil {
			return err
		}
		if err := tx.Where("team_id = ?", teamID).Delete(&models.TeamAdminAssignment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Team{}, teamID).Error
	})
	if err != nil {
		return Persistence("deleting team", err)
	}
	return nil
}

// GrantAllPermissions creates or resets the permission row of (userID, teamID)
// with every capability enabled
func (r *TeamRegistry) GrantAllPermissions(ctx context.Context, userID, teamID uint) error {
	if err := grantAllPermissions(r.db.WithContext(ctx), userID, teamID); err != nil {
		return Persistence("granting permissions", err)
	}
	return nil
}

// SetPermissions overwrites the capability flags of an existing grant
func (r *TeamRegistry) SetPermissions(ctx context.Context, userID, teamID uint, flags models.PermissionSet) (*models.TeamAdminPermission, error) {
	db := r.db.WithContext(ctx)
	res := db.Model(&models.TeamAdminPermission{}).
		Where("user_id = ? AND team_id = ?", userID, teamID).
		Updates(flags.Columns())
	if res.Error != nil {
		return nil, Persistence("updating permissions", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, NotFound("No permission record for this team admin and team")
	}

	var perm models.TeamAdminPermission
	if err := db.Where("user_id = ? AND team_id = ?", userID, teamID).First(&perm).Error; err != nil {
		return nil, Persistence("loading permissions", err)
	}
	return &perm, nil
}

// Permissions returns the grant of (userID, teamID); ok is false when none exists
func (r *TeamRegistry) Permissions(ctx context.Context, userID, teamID uint) (perm models.TeamAdminPermission, ok bool, err error) {
	err = r.db.WithContext(ctx).Where("user_id = ? AND team_id = ?", userID, teamID).First(&perm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return perm, false, nil
	}
	if err != nil {
		return perm, false, Persistence("loading permissions", err)
	}
	return perm, true, nil
}

// HasPermission reports whether userID administers teamID with capability c
func (r *TeamRegistry) HasPermission(ctx context.Context, userID, teamID uint, c models.Capability) (bool, error) {
	ids, err := teamsWithCapability(ctx, r.db, userID, c)
	if err != nil {
		return false, Persistence("checking permissions", err)
	}
	return containsID(ids, teamID), nil
}

// ManagedTeamIDs lists the teams assigned to a team admin
func (r *TeamRegistry) ManagedTeamIDs(ctx context.Context, userID uint) ([]uint, error) {
	ids, err := managedTeamIDs(ctx, r.db, userID)
	if err != nil {
		return nil, Persistence("loading managed teams", err)
	}
	return ids, nil
}

// ListTeams returns the teams visible to the actor with member counts
func (r *TeamRegistry) ListTeams(ctx context.Context, actor Actor) ([]TeamSummary, error) {
	db := r.db.WithContext(ctx)
	ids, global, err := visibleTeamIDs(ctx, r.db, actor)
	if err != nil {
		return nil, Persistence("resolving team scope", err)
	}

	query := db.Preload("PrimaryTeamAdmin").Order("name")
	if !global {
		if len(ids) == 0 {
			return []TeamSummary{}, nil
		}
		query = query.Where("id IN ?", ids)
	}
	var teams []models.Team
	if err := query.Find(&teams).Error; err != nil {
		return nil, Persistence("loading teams", err)
	}

	type countRow struct {
		TeamID uint
		Total  int64
	}
	var counts []countRow
	if err := db.Model(&models.User{}).
		Select("team_id, COUNT(*) AS total").
		Where("team_id IS NOT NULL").
		Group("team_id").
		Scan(&counts).Error; err != nil {
		return nil, Persistence("counting team members", err)
	}
	byTeam := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byTeam[c.TeamID] = c.Total
	}

	out := make([]TeamSummary, 0, len(teams))
	for _, t := range teams {
		out = append(out, TeamSummary{Team: t, MemberCount: byTeam[t.ID]})
	}
	return out, nil
}

// GetTeam returns a team the actor can see, with members and admin bookkeeping
func (r *TeamRegistry) GetTeam(ctx context.Context, actor Actor, teamID uint) (*TeamDetail, error) {
	if err := r.requireVisible(ctx, actor, teamID); err != nil {
		return nil, err
	}

	db := r.db.WithContext(ctx)
	var detail TeamDetail
	err := db.Preload("PrimaryTeamAdmin").
		Preload("Members", func(tx *gorm.DB) *gorm.DB { return tx.Order("full_name") }).
		First(&detail.Team, teamID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("Team not found")
	}
	if err != nil {
		return nil, Persistence("loading team", err)
	}
	if err := db.Preload("TeamAdmin").Where("team_id = ?", teamID).Order("assigned_at").Find(&detail.Assignments).Error; err != nil {
		return nil, Persistence("loading team admins", err)
	}
	if err := db.Where("team_id = ?", teamID).Order("user_id").Find(&detail.Permissions).Error; err != nil {
		return nil, Persistence("loading permissions", err)
	}
	return &detail, nil
}

// TeamMembers lists the users placed on a team the actor can see
func (r *TeamRegistry) TeamMembers(ctx context.Context, actor Actor, teamID uint) ([]models.User, error) {
	if err := r.requireVisible(ctx, actor, teamID); err != nil {
		return nil, err
	}
	var members []models.User
	if err := r.db.WithContext(ctx).Where("team_id = ?", teamID).Order("full_name").Find(&members).Error; err != nil {
		return nil, Persistence("loading team members", err)
	}
	return members, nil
}

func (r *TeamRegistry) requireVisible(ctx context.Context, actor Actor, teamID uint) error {
	ids, global, err := visibleTeamIDs(ctx, r.db, actor)
	if err != nil {
		return Persistence("resolving team scope", err)
	}
	if !global && !containsID(ids, teamID) {
		return NotFound("Team not found")
	}
	return nil
}

// canManage reports whether actor may act on teamID with capability c. Admins
// always may; team admins need the capability on that team.
func (r *TeamRegistry) canManage(ctx context.Context, actor Actor, teamID uint, c models.Capability) (bool, error) {
	switch {
	case actor.IsAdmin():
		return true, nil
	case actor.IsTeamAdmin():
		ids, err := teamsWithCapability(ctx, r.db, actor.UserID, c)
		if err != nil {
			return false, err
		}
		return containsID(ids, teamID), nil
	}
	return false, nil
}

// attachAdmin upserts the assignment, grants every capability and back-fills the
// admin's own placement only where it is unset
func (r *TeamRegistry) attachAdmin(tx *gorm.DB, actor Actor, adminID, teamID uint) error {
	now := r.now()
	assignment := models.TeamAdminAssignment{
		TeamAdminID: adminID,
		TeamID:      teamID,
		AssignedBy:  &actor.UserID,
		AssignedAt:  now,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "team_admin_id"}, {Name: "team_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"assigned_at": now,
			"assigned_by": actor.UserID,
		}),
	}).Create(&assignment).Error
	if err != nil {
		return Persistence("assigning team admin", err)
	}

	if err := grantAllPermissions(tx, adminID, teamID); err != nil {
		return Persistence("granting permissions", err)
	}

	err = tx.Model(&models.User{}).Where("id = ?", adminID).Updates(map[string]interface{}{
		"team_id":         gorm.Expr("COALESCE(team_id, ?)", teamID),
		"parent_admin_id": gorm.Expr("COALESCE(parent_admin_id, ?)", actor.UserID),
	}).Error
	if err != nil {
		return Persistence("updating team admin", err)
	}
	return nil
}

func detachAdmin(tx *gorm.DB, adminID, teamID uint) error {
	if err := tx.Where("team_admin_id = ? AND team_id = ?", adminID, teamID).Delete(&models.TeamAdminAssignment{}).Error; err != nil {
		return Persistence("removing team admin", err)
	}
	if err := tx.Where("user_id = ? AND team_id = ?", adminID, teamID).Delete(&models.TeamAdminPermission{}).Error; err != nil {
		return Persistence("removing permissions", err)
	}
	return nil
}

func grantAllPermissions(db *gorm.DB, userID, teamID uint) error {
	perm := models.TeamAdminPermission{
		UserID:        userID,
		TeamID:        teamID,
		PermissionSet: models.AllPermissions(),
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			string(models.CanAssign),
			string(models.CanEdit),
			string(models.CanArchive),
			string(models.CanAddMembers),
			string(models.CanViewReports),
			string(models.CanSendMessages),
			"updated_at",
		}),
	}).Create(&perm).Error
}

func ensureUniqueTeamName(tx *gorm.DB, name string, excludeID uint) error {
	var count int64
	if err := tx.Model(&models.Team{}).Where("name = ? AND id <> ?", name, excludeID).Count(&count).Error; err != nil {
		return Persistence("checking team name", err)
	}
	if count > 0 {
		return Validation("A team named %q already exists", name)
	}
	return nil
}

func requireActiveTeamAdmin(tx *gorm.DB, userID uint) error {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Reference("Selected team admin does not exist")
		}
		return Persistence("loading team admin", err)
	}
	if user.Role != models.RoleTeamAdmin || !user.IsActive() {
		return Reference("Selected user is not an active team admin")
	}
	return nil
}

func requireTeam(db *gorm.DB, teamID uint) error {
	var count int64
	if err := db.Model(&models.Team{}).Where("id = ?", teamID).Count(&count).Error; err != nil {
		return Persistence("loading team", err)
	}
	if count == 0 {
		return NotFound("Team not found")
	}
	return nil
}
