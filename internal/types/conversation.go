package types

import (
	"time"

	"github.com/google/uuid"
)

// Conversation represents a chat room. A nil ID denotes a room that has not
// been provisioned yet; the first successful send assigns one.
type Conversation struct {
	ID         *uuid.UUID `json:"id"`
	PublicKey  string     `json:"public_key"`
	Model      string     `json:"model"`
	Title      *string    `json:"title,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

// SendRequest carries one user turn into the lifecycle.
type SendRequest struct {
	RoomID      *uuid.UUID `json:"room_id,omitempty"`
	UserContent string     `json:"content"`
	History     []Turn     `json:"-"`
	Model       string     `json:"model"`
	SearchMode  bool       `json:"search_mode"`
}

// RegenerateRequest re-runs the completion for an existing assistant turn.
// History must be the full current turn list; the tracker truncates it to
// the turns strictly before the target.
type RegenerateRequest struct {
	TargetClientID      uuid.UUID `json:"target_client_id"`
	History             []Turn    `json:"-"`
	OverrideUserContent *string   `json:"override_content,omitempty"`
}

// Citation is a source reference returned by the search-mode backend.
type Citation struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
}

// NormalizedResponse is the single response shape the orchestrator consumes,
// regardless of which wire shape the completion endpoint produced.
type NormalizedResponse struct {
	Content     string     `json:"content"`
	Model       string     `json:"model,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`
	TimeWarning string     `json:"time_warning,omitempty"`
}
