package domain

// Identity is the caller as resolved by the identity provider. An empty
// UserID is an anonymous visitor.
type Identity struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Agent  bool   `json:"is_agent"`
}

// Anonymous reports whether the caller is unauthenticated.
func (id Identity) Anonymous() bool { return id.UserID == "" }

// DisplayName returns a name suitable for broadcast payloads.
func (id Identity) DisplayName() string {
	switch {
	case id.Name != "":
		return id.Name
	case id.UserID != "":
		return id.UserID
	default:
		return "Guest"
	}
}

// SenderType derives the transcript sender type for this caller.
func (id Identity) SenderType() SenderType {
	if id.Agent {
		return SenderAgent
	}
	return SenderCustomer
}
