package mewapi

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	IsBot    bool   `json:"isBot"`
}

// Tag is the user-facing display tag for mentions and card text.
func (u User) Tag() string { return "@" + u.Username }

type Channel struct {
	ID       string `json:"_id"`
	ServerID string `json:"serverId"`
	Type     string `json:"type"`
	Name     string `json:"name"`
}

type Server struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type Role struct {
	ID   string `json:"_id"`
	Name string `json:"name"`
}

type AttachmentRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
}

// Button is one interactive control rendered under a message. Activating it
// delivers an INTERACTION_CREATE gateway event carrying CustomID.
type Button struct {
	CustomID string `json:"customId"`
	Label    string `json:"label"`
	Style    string `json:"style,omitempty"` // primary | secondary | success
	Disabled bool   `json:"disabled,omitempty"`
}

// Card is the embed-like payload the frontend renders above the buttons.
type Card struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// MessagePayload is the outbound message body for send and edit calls.
// Components set to an empty (non-nil) slice strips all controls on edit.
type MessagePayload struct {
	Content     string          `json:"content,omitempty"`
	Card        *Card           `json:"card,omitempty"`
	Components  []Button        `json:"components,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

type ChannelMessage struct {
	ID          string          `json:"_id"`
	ChannelID   string          `json:"channelId"`
	Content     string          `json:"content"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	AuthorRaw   json.RawMessage `json:"authorId"`
}

func (m ChannelMessage) AuthorID() string { return AuthorID(m.AuthorRaw) }

func (m ChannelMessage) AuthorIsBot() bool {
	raw := bytes.TrimSpace(m.AuthorRaw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	var author struct {
		IsBot bool `json:"isBot"`
	}
	if err := json.Unmarshal(raw, &author); err != nil {
		return false
	}
	return author.IsBot
}

// AuthorID extracts the author user id whether the backend populated the
// field as a plain id string or an embedded user object.
func AuthorID(authorRaw json.RawMessage) string {
	raw := bytes.TrimSpace(authorRaw)
	if len(raw) == 0 {
		return ""
	}

	if raw[0] == '"' {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return ""
		}
		return strings.TrimSpace(id)
	}

	if raw[0] != '{' {
		return ""
	}
	var author struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(raw, &author); err != nil {
		return ""
	}
	return strings.TrimSpace(author.ID)
}

// AuthorUsername extracts the author username when the backend embedded
// the full user object; a plain id string yields "".
func AuthorUsername(authorRaw json.RawMessage) string {
	raw := bytes.TrimSpace(authorRaw)
	if len(raw) == 0 || raw[0] != '{' {
		return ""
	}
	var author struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &author); err != nil {
		return ""
	}
	return strings.TrimSpace(author.Username)
}

// Mention renders an inline mention for a user id.
func Mention(userID string) string { return "<@" + userID + ">" }
