package api

import (
	"time"

	"github.com/jrsteele09/solugarde-client/users"
)

// AuthResponse is returned by /auth/login and /auth/refresh
type AuthResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         *users.User `json:"user,omitempty"`
}

// Complete reports whether both halves of the token pair are present
func (r *AuthResponse) Complete() bool {
	return r != nil && r.AccessToken != "" && r.RefreshToken != ""
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type PaginatedResponse[T any] struct {
	Data       []T `json:"data"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// Page holds the pagination parameters shared by every list endpoint
type Page struct {
	Page  int `url:"page,omitempty"`
	Limit int `url:"limit,omitempty"`
}

type Garderie struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Address   string       `json:"address,omitempty"`
	Email     string       `json:"email,omitempty"`
	Region    string       `json:"region,omitempty"`
	IsActive  bool         `json:"isActive"`
	UserCount int          `json:"userCount,omitempty"`
	Users     []users.User `json:"users,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type GarderieQuery struct {
	Page
	Search   string `url:"search,omitempty"`
	Region   string `url:"region,omitempty"`
	IsActive *bool  `url:"isActive,omitempty"`
}

type JobOffer struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"startDate"`
	EndDate     time.Time `json:"endDate"`
	Region      string    `json:"region"`
	Garderie    *Garderie `json:"garderie,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type JobOfferQuery struct {
	Page
	Region     string `url:"region,omitempty"`
	StartDate  string `url:"startDate,omitempty"`
	GarderieID string `url:"garderieId,omitempty"`
}

type UserQuery struct {
	Page
	Search   string         `url:"search,omitempty"`
	Role     users.RoleType `url:"role,omitempty"`
	IsActive *bool          `url:"isActive,omitempty"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId"`
	SenderID       string     `json:"senderId"`
	Content        string     `json:"content"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// IsRead reports whether a read receipt has been recorded
func (m Message) IsRead() bool {
	return m.ReadAt != nil
}

type Conversation struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	LastMessage  *Message `json:"lastMessage,omitempty"`
	UnreadCount  int      `json:"unreadCount,omitempty"`
	ClientID     string   `json:"clientId,omitempty"`
	RemplacantID string   `json:"remplacantId,omitempty"`
}

type CreateMessageRequest struct {
	ConversationID string `json:"conversationId"`
	Body           string `json:"body"`
}
