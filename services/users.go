package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/badoux/checkmail"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"teamdesk/models"
)

// UserDirectory owns accounts, credentials and login history
type UserDirectory struct {
	db  *gorm.DB
	now func() time.Time
}

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db, now: time.Now}
}

type CreateUserInput struct {
	FullName string `json:"full_name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required,oneof=admin team_admin employee"`
	TeamID   *uint  `json:"team_id"`
}

type UserFilter struct {
	Role   string
	Status string
	TeamID *uint
}

// LoginInfo describes the client a login came from
type LoginInfo struct {
	IPAddress string
	UserAgent string
}

var ErrInvalidCredentials = errors.New("invalid email or password")

// CreateUser registers an account on behalf of an admin
func (d *UserDirectory) CreateUser(ctx context.Context, actor Actor, in CreateUserInput) (*models.User, error) {
	if !actor.IsAdmin() {
		return nil, Noop("Only admins can create users")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := checkmail.ValidateFormat(email); err != nil {
		return nil, Validation("Invalid email address")
	}
	if !models.ValidRole(in.Role) {
		return nil, Validation("Invalid role %q", in.Role)
	}
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return nil, Validation("Full name is required")
	}

	db := d.db.WithContext(ctx)
	var existing int64
	if err := db.Unscoped().Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, Persistence("checking email", err)
	}
	if existing > 0 {
		return nil, Conflict("Email already registered")
	}
	if in.TeamID != nil {
		if err := requireTeam(db, *in.TeamID); err != nil {
			return nil, Reference("Selected team does not exist")
		}
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, Persistence("hashing password", err)
	}
	user := &models.User{
		Email:         email,
		PasswordHash:  hash,
		FullName:      name,
		Role:          in.Role,
		Status:        models.StatusActive,
		TeamID:        in.TeamID,
		ParentAdminID: &actor.UserID,
	}
	if err := db.Create(user).Error; err != nil {
		return nil, Persistence("creating user", err)
	}
	return user, nil
}

// ListUsers returns the accounts visible to the actor. Team admins see the
// employees of their teams plus unassigned employees they could add.
func (d *UserDirectory) ListUsers(ctx context.Context, actor Actor, f UserFilter) ([]models.User, error) {
	query := d.db.WithContext(ctx).Preload("Team").Order("full_name")
	switch {
	case actor.IsAdmin():
	case actor.IsTeamAdmin():
		ids, err := managedTeamIDs(ctx, d.db, actor.UserID)
		if err != nil {
			return nil, Persistence("loading managed teams", err)
		}
		scope := d.db.Where("team_id IS NULL AND role = ?", models.RoleEmployee)
		if len(ids) > 0 {
			scope = scope.Or("team_id IN ?", ids)
		}
		query = query.Where(scope)
	default:
		return nil, Noop("Only admins and team admins can list users")
	}

	if f.Role != "" {
		query = query.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.TeamID != nil {
		query = query.Where("team_id = ?", *f.TeamID)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, Persistence("loading users", err)
	}
	return users, nil
}

// SetStatus activates or deactivates an account. Deactivation also revokes
// outstanding tokens.
func (d *UserDirectory) SetStatus(ctx context.Context, actor Actor, userID uint, status string) error {
	if !actor.IsAdmin() {
		return Noop("Only admins can change account status")
	}
	if status != models.StatusActive && status != models.StatusInactive {
		return Validation("Invalid status %q", status)
	}
	if userID == actor.UserID && status == models.StatusInactive {
		return Validation("You cannot deactivate your own account")
	}

	updates := map[string]interface{}{"status": status}
	if status == models.StatusInactive {
		updates["token_version"] = gorm.Expr("token_version + 1")
	}
	res := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
	if res.Error != nil {
		return Persistence("updating user status", res.Error)
	}
	if res.RowsAffected == 0 {
		return NotFound("User not found")
	}
	return nil
}

// Authenticate checks credentials and records the login. Unknown emails, bad
// passwords and inactive accounts all return ErrInvalidCredentials.
func (d *UserDirectory) Authenticate(ctx context.Context, email, password string, info LoginInfo) (*models.User, error) {
	db := d.db.WithContext(ctx)
	var user models.User
	err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, Persistence("loading user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil || !user.IsActive() {
		return nil, ErrInvalidCredentials
	}

	now := d.now()
	err = db.Transaction(func(tx *gorm.DB) error {
		login := models.UserLogin{
			UserID:    user.ID,
			LoginTime: now,
			IPAddress: info.IPAddress,
			UserAgent: truncate(info.UserAgent, 255),
		}
		if err := tx.Create(&login).Error; err != nil {
			return err
		}
		return tx.Model(&user).Update("last_login_at", now).Error
	})
	if err != nil {
		return nil, Persistence("recording login", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

// Get loads an active account by id
func (d *UserDirectory) Get(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Preload("Team").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		return nil, Persistence("loading user", err)
	}
	return &user, nil
}

// RevokeTokens invalidates every token issued to userID
func (d *UserDirectory) RevokeTokens(ctx context.Context, userID uint) error {
	err := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("token_version", gorm.Expr("token_version + 1")).Error
	if err != nil {
		return Persistence("revoking tokens", err)
	}
	return nil
}

// HashPassword bcrypt-hashes a plaintext password
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
