package services

import (
	"context"

	"gorm.io/gorm"

	"teamdesk/models"
)

// managedTeamIDs returns the teams a team admin is assigned to
func managedTeamIDs(ctx context.Context, db *gorm.DB, userID uint) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(&models.TeamAdminAssignment{}).
		Where("team_admin_id = ?", userID).
		Order("team_id").
		Pluck("team_id", &ids).Error
	return ids, err
}

// teamsWithCapability returns the managed teams on which userID holds capability c
func teamsWithCapability(ctx context.Context, db *gorm.DB, userID uint, c models.Capability) ([]uint, error) {
	var ids []uint
	err := db.WithContext(ctx).Model(&models.TeamAdminPermission{}).
		Where("user_id = ? AND "+string(c)+" = ?", userID, true).
		Where("team_id IN (?)", db.Model(&models.TeamAdminAssignment{}).Select("team_id").Where("team_admin_id = ?", userID)).
		Order("team_id").
		Pluck("team_id", &ids).Error
	return ids, err
}

// visibleTeamIDs resolves the team scope of an actor. global is true for admins,
// in which case ids is nil and no team filter applies.
func visibleTeamIDs(ctx context.Context, db *gorm.DB, actor Actor) (ids []uint, global bool, err error) {
	switch actor.Role {
	case models.RoleAdmin:
		return nil, true, nil
	case models.RoleTeamAdmin:
		ids, err = managedTeamIDs(ctx, db, actor.UserID)
		return ids, false, err
	default:
		if actor.TeamID != nil {
			return []uint{*actor.TeamID}, false, nil
		}
		return []uint{}, false, nil
	}
}

func containsID(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func sameID(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// nullableID converts an optional id into a value gorm writes as NULL when unset
func nullableID(id *uint) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
