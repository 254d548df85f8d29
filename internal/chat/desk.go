package chat

import (
	"context"
	"sort"

	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/rooms"
)

func requireAgent(id domain.Identity) error {
	if id.Anonymous() {
		return domain.Unauthenticated()
	}
	if !id.Agent {
		return domain.Forbiddenf("Access denied")
	}
	return nil
}

// ListAgents returns every configured agent, flagging those with a
// connection in the agents room on this node.
func (s *Service) ListAgents(_ context.Context, id domain.Identity) ([]AgentView, error) {
	if err := requireAgent(id); err != nil {
		return nil, err
	}
	online := make(map[string]bool)
	for _, uid := range s.rooms.Users(rooms.Agents) {
		online[uid] = true
	}
	var agents []domain.Identity
	if s.dir != nil {
		agents = s.dir.Agents()
	}
	out := make([]AgentView, 0, len(agents))
	for _, a := range agents {
		out = append(out, AgentView{ID: a.UserID, Name: a.DisplayName(), Email: a.Email, Online: online[a.UserID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCanned returns the active canned responses.
func (s *Service) ListCanned(ctx context.Context, id domain.Identity) ([]*domain.CannedResponse, error) {
	if err := requireAgent(id); err != nil {
		return nil, err
	}
	return s.canned.List(ctx, true)
}

// CreateCanned adds a canned response.
func (s *Service) CreateCanned(ctx context.Context, id domain.Identity, c domain.CannedResponse) (*domain.CannedResponse, error) {
	if err := requireAgent(id); err != nil {
		return nil, err
	}
	return s.canned.Create(ctx, c)
}

// CannedPatch is the input of UpdateCanned. A nil Active keeps the
// current flag.
type CannedPatch struct {
	Title    string
	Content  string
	Category string
	Active   *bool
}

// UpdateCanned replaces the text fields of an existing canned response.
func (s *Service) UpdateCanned(ctx context.Context, id domain.Identity, cannedID int64, p CannedPatch) (*domain.CannedResponse, error) {
	if err := requireAgent(id); err != nil {
		return nil, err
	}
	c, err := s.canned.Get(ctx, cannedID)
	if err != nil {
		return nil, err
	}
	c.Title, c.Content, c.Category = p.Title, p.Content, p.Category
	if p.Active != nil {
		c.Active = *p.Active
	}
	return s.canned.Update(ctx, *c)
}

// DeleteCanned removes a canned response.
func (s *Service) DeleteCanned(ctx context.Context, id domain.Identity, cannedID int64) error {
	if err := requireAgent(id); err != nil {
		return err
	}
	return s.canned.Delete(ctx, cannedID)
}

// TodayAnalytics returns the rollup for the current UTC day. A day with
// no activity reads as zeros.
func (s *Service) TodayAnalytics(ctx context.Context, id domain.Identity) (*domain.Analytics, error) {
	if err := requireAgent(id); err != nil {
		return nil, err
	}
	return s.analytics.Get(ctx, s.analytics.Today())
}

// ListNotifications returns the caller's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, id domain.Identity, unreadOnly bool) ([]*domain.Notification, error) {
	if id.Anonymous() {
		return nil, domain.Unauthenticated()
	}
	return s.notifications.ListForUser(ctx, id.UserID, unreadOnly)
}

// MarkNotificationRead acknowledges one of the caller's notifications.
func (s *Service) MarkNotificationRead(ctx context.Context, id domain.Identity, notificationID int64) error {
	if id.Anonymous() {
		return domain.Unauthenticated()
	}
	return s.notifications.MarkRead(ctx, notificationID, id.UserID)
}
