package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"teamdesk/models"
)

// Feed source tags
const (
	SourceActivity = "activity"
	SourceMessage  = "message"
	SourceLogin    = "login"
)

// Feed priorities
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

const previewLength = 50

// FeedScope is the set of teams an activity feed is restricted to
type FeedScope struct {
	Global  bool   `json:"global"`
	TeamIDs []uint `json:"team_ids"`
}

// FeedLimits caps how many rows each source contributes before merging
type FeedLimits struct {
	Activities int
	Messages   int
	Logins     int
}

var DefaultFeedLimits = FeedLimits{Activities: 20, Messages: 20, Logins: 10}

// ActivityEvent is one row from any feed source
type ActivityEvent interface {
	Timestamp() time.Time
	Source() string
	Entry(loc *time.Location) FeedEntry
}

type TaskEvent struct{ Log models.ActivityLog }

type MessageEvent struct{ Message models.Message }

type LoginEvent struct{ Login models.UserLogin }

// FeedEntry is the display shape of an event
type FeedEntry struct {
	Type         string    `json:"type"`
	Source       string    `json:"source_type"`
	User         string    `json:"user"`
	UserRole     string    `json:"user_role"`
	TeamName     string    `json:"team_name"`
	Task         string    `json:"task,omitempty"`
	Details      string    `json:"details"`
	Time         string    `json:"time"`
	ActivityTime time.Time `json:"activity_time"`
	TaskID       *uint     `json:"task_id,omitempty"`
	Priority     string    `json:"priority"`
	Icon         string    `json:"icon"`
	Receiver     string    `json:"receiver,omitempty"`
	Preview      string    `json:"preview,omitempty"`
	OldStatus    *string   `json:"old_status,omitempty"`
	NewStatus    *string   `json:"new_status,omitempty"`
}

// Feed is the truncated, newest-first activity list for today. More counts
// entries dropped by the display cap among the rows fetched.
type Feed struct {
	Entries []FeedEntry `json:"entries"`
	More    int         `json:"more"`
	Total   int         `json:"total"`
}

func (e TaskEvent) Timestamp() time.Time    { return e.Log.CreatedAt }
func (e MessageEvent) Timestamp() time.Time { return e.Message.SentAt }
func (e LoginEvent) Timestamp() time.Time   { return e.Login.LoginTime }

func (TaskEvent) Source() string    { return SourceActivity }
func (MessageEvent) Source() string { return SourceMessage }
func (LoginEvent) Source() string   { return SourceLogin }

func (e TaskEvent) Entry(loc *time.Location) FeedEntry {
	entry := FeedEntry{
		Type:         e.Log.ActionType,
		Source:       SourceActivity,
		Details:      e.Log.Details,
		ActivityTime: e.Log.CreatedAt,
		Time:         FormatClock(e.Log.CreatedAt, loc),
		TaskID:       e.Log.TaskID,
		OldStatus:    e.Log.OldStatus,
		NewStatus:    e.Log.NewStatus,
	}
	if u := e.Log.User; u != nil {
		entry.User, entry.UserRole, entry.TeamName = u.FullName, u.Role, teamName(u.Team)
	}
	if t := e.Log.Task; t != nil {
		entry.Task = t.Title
		if t.Team != nil {
			entry.TeamName = t.Team.Name
		}
	}
	entry.Priority = PriorityFor(entry.Source, entry.Type)
	entry.Icon = iconFor(entry.Source, entry.Type)
	return entry
}

func (e MessageEvent) Entry(loc *time.Location) FeedEntry {
	m := e.Message
	entry := FeedEntry{
		Type:         SourceMessage,
		Source:       SourceMessage,
		Details:      m.Subject,
		ActivityTime: m.SentAt,
		Time:         FormatClock(m.SentAt, loc),
		TaskID:       m.TaskID,
		Preview:      MessagePreview(m.Body),
	}
	if u := m.Sender; u != nil {
		entry.User, entry.UserRole, entry.TeamName = u.FullName, u.Role, teamName(u.Team)
	}
	if r := m.Recipient; r != nil {
		entry.Receiver = r.FullName
	}
	if m.Task != nil {
		entry.Task = m.Task.Title
	}
	entry.Priority = PriorityFor(entry.Source, entry.Type)
	entry.Icon = iconFor(entry.Source, entry.Type)
	return entry
}

func (e LoginEvent) Entry(loc *time.Location) FeedEntry {
	entry := FeedEntry{
		Type:         SourceLogin,
		Source:       SourceLogin,
		Details:      "Logged in",
		ActivityTime: e.Login.LoginTime,
		Time:         FormatClock(e.Login.LoginTime, loc),
	}
	if u := e.Login.User; u != nil {
		entry.User, entry.UserRole, entry.TeamName = u.FullName, u.Role, teamName(u.Team)
	}
	entry.Priority = PriorityFor(entry.Source, entry.Type)
	entry.Icon = iconFor(entry.Source, entry.Type)
	return entry
}

// PriorityFor classifies a feed entry from its source and type alone
func PriorityFor(source, typ string) string {
	if source == SourceLogin {
		return PriorityLow
	}
	switch typ {
	case models.ActionTaskCompleted, models.ActionStatusUpdate:
		return PriorityHigh
	case models.ActionTaskCreated, models.ActionTaskAssigned:
		return PriorityMedium
	}
	return PriorityNormal
}

func iconFor(source, typ string) string {
	switch source {
	case SourceMessage:
		return "envelope"
	case SourceLogin:
		return "sign-in"
	}
	switch typ {
	case models.ActionTaskCreated, models.ActionTaskAssigned:
		return "plus-circle"
	case models.ActionTaskCompleted, models.ActionTaskApproved:
		return "check-circle"
	case models.ActionStatusUpdate:
		return "sync"
	case models.ActionSubtaskAdded:
		return "list"
	case models.ActionTaskArchived:
		return "archive"
	case models.ActionTaskOverdue:
		return "clock"
	}
	return "circle"
}

// FormatClock renders t as a 12-hour wall clock time such as "3:04 PM"
func FormatClock(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("3:04 PM")
}

// MessagePreview shortens a message body for feeds and notifications
func MessagePreview(body string) string {
	body = strings.TrimSpace(body)
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	r := []rune(body)
	return string(r[:previewLength]) + "..."
}

func teamName(t *models.Team) string {
	if t == nil {
		return ""
	}
	return t.Name
}

// ActivityAggregator merges task activity, messages and logins into one feed
type ActivityAggregator struct {
	db     *gorm.DB
	log    *logrus.Entry
	now    func() time.Time
	limits FeedLimits
}

func NewActivityAggregator(db *gorm.DB, log *logrus.Entry) *ActivityAggregator {
	return &ActivityAggregator{db: db, log: log, now: time.Now, limits: DefaultFeedLimits}
}

// ResolveScope turns the dashboard's team selector into a FeedScope. Admins
// default to global; team admins only ever see teams they hold can_view_reports on.
func (a *ActivityAggregator) ResolveScope(ctx context.Context, actor Actor, selector string) (FeedScope, error) {
	selector = strings.TrimSpace(strings.ToLower(selector))
	var teamID *uint
	if selector != "" && selector != "global" && selector != "mine" {
		id, err := strconv.ParseUint(selector, 10, 64)
		if err != nil || id == 0 {
			return FeedScope{}, Validation("Invalid team selector %q", selector)
		}
		v := uint(id)
		teamID = &v
	}

	switch {
	case actor.IsAdmin():
		if teamID == nil {
			return FeedScope{Global: true}, nil
		}
		if err := requireTeam(a.db.WithContext(ctx), *teamID); err != nil {
			return FeedScope{}, err
		}
		return FeedScope{TeamIDs: []uint{*teamID}}, nil
	case actor.IsTeamAdmin():
		ids, err := teamsWithCapability(ctx, a.db, actor.UserID, models.CanViewReports)
		if err != nil {
			return FeedScope{}, Persistence("checking permissions", err)
		}
		if teamID != nil {
			if !containsID(ids, *teamID) {
				return FeedScope{}, NotFound("Team not found")
			}
			ids = []uint{*teamID}
		}
		return FeedScope{TeamIDs: ids}, nil
	}
	return FeedScope{}, Noop("The activity feed is available to admins and team admins")
}

// Feed builds today's activity feed for scope and truncates it to displayCap.
// A failing source is logged and contributes nothing.
func (a *ActivityAggregator) Feed(ctx context.Context, scope FeedScope, displayCap int) Feed {
	now := a.now()
	loc := now.Location()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	feed := Feed{Entries: []FeedEntry{}}
	if !scope.Global && len(scope.TeamIDs) == 0 {
		return feed
	}

	var events []ActivityEvent
	sources := []struct {
		name  string
		fetch func(context.Context, FeedScope, time.Time, time.Time) ([]ActivityEvent, error)
	}{
		{SourceActivity, a.taskEvents},
		{SourceMessage, a.messageEvents},
		{SourceLogin, a.loginEvents},
	}
	for _, src := range sources {
		got, err := src.fetch(ctx, scope, start, end)
		if err != nil {
			a.log.WithError(err).WithField("source", src.name).Warn("Activity source failed, continuing without it")
			continue
		}
		events = append(events, got...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp().After(events[j].Timestamp())
	})

	feed.Total = len(events)
	if displayCap > 0 && len(events) > displayCap {
		feed.More = len(events) - displayCap
		events = events[:displayCap]
	}
	for _, e := range events {
		feed.Entries = append(feed.Entries, e.Entry(loc))
	}
	return feed
}

func (a *ActivityAggregator) taskEvents(ctx context.Context, scope FeedScope, start, end time.Time) ([]ActivityEvent, error) {
	query := a.db.WithContext(ctx).
		Preload("User.Team").Preload("Task.Team").
		Where("created_at >= ? AND created_at < ?", start, end)
	if !scope.Global {
		query = query.Where(a.db.
			Where("user_id IN (?)", a.scopeMembers(scope)).
			Or("user_id IN (?)", a.scopeAdmins(scope)).
			Or("task_id IN (?)", a.db.Model(&models.Task{}).Select("id").Where("team_id IN ?", scope.TeamIDs)))
	}
	var logs []models.ActivityLog
	if err := query.Order("created_at desc").Limit(a.limits.Activities).Find(&logs).Error; err != nil {
		return nil, err
	}
	out := make([]ActivityEvent, 0, len(logs))
	for _, l := range logs {
		out = append(out, TaskEvent{Log: l})
	}
	return out, nil
}

func (a *ActivityAggregator) messageEvents(ctx context.Context, scope FeedScope, start, end time.Time) ([]ActivityEvent, error) {
	query := a.db.WithContext(ctx).
		Preload("Sender.Team").Preload("Recipient").Preload("Task").
		Where("sent_at >= ? AND sent_at < ?", start, end)
	if !scope.Global {
		query = query.Where(a.db.
			Where("sender_id IN (?)", a.scopeMembers(scope)).
			Or("sender_id IN (?)", a.scopeAdmins(scope)).
			Or("recipient_id IN (?)", a.scopeMembers(scope)).
			Or("recipient_id IN (?)", a.scopeAdmins(scope)))
	}
	var msgs []models.Message
	if err := query.Order("sent_at desc").Limit(a.limits.Messages).Find(&msgs).Error; err != nil {
		return nil, err
	}
	out := make([]ActivityEvent, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageEvent{Message: m})
	}
	return out, nil
}

func (a *ActivityAggregator) loginEvents(ctx context.Context, scope FeedScope, start, end time.Time) ([]ActivityEvent, error) {
	query := a.db.WithContext(ctx).
		Preload("User.Team").
		Where("login_time >= ? AND login_time < ?", start, end)
	if !scope.Global {
		query = query.Where(a.db.
			Where("user_id IN (?)", a.scopeMembers(scope)).
			Or("user_id IN (?)", a.scopeAdmins(scope)))
	}
	var logins []models.UserLogin
	if err := query.Order("login_time desc").Limit(a.limits.Logins).Find(&logins).Error; err != nil {
		return nil, err
	}
	out := make([]ActivityEvent, 0, len(logins))
	for _, l := range logins {
		out = append(out, LoginEvent{Login: l})
	}
	return out, nil
}

// scopeMembers selects ids of users placed on a scoped team
func (a *ActivityAggregator) scopeMembers(scope FeedScope) *gorm.DB {
	return a.db.Model(&models.User{}).Select("id").Where("team_id IN ?", scope.TeamIDs)
}

// scopeAdmins selects ids of team admins assigned to a scoped team
func (a *ActivityAggregator) scopeAdmins(scope FeedScope) *gorm.DB {
	return a.db.Model(&models.TeamAdminAssignment{}).Select("team_admin_id").Where("team_id IN ?", scope.TeamIDs)
}
