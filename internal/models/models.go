package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// User is the account record owned by the user service. The gateway only
// passes it through and never returns it outward; see View.
type User struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	Password       string     `json:"password,omitempty"`
	DisplayName    string     `json:"displayName"`
	AdminGrantedAt *time.Time `json:"adminGrantedAt,omitempty"`
}

// UserView is the outward projection of a User. It has no credential field.
type UserView struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	DisplayName    string     `json:"displayName"`
	AdminGrantedAt *time.Time `json:"adminGrantedAt,omitempty"`
}

// View drops the credential.
func (u User) View() UserView {
	return UserView{
		ID:             u.ID,
		Email:          u.Email,
		DisplayName:    u.DisplayName,
		AdminGrantedAt: u.AdminGrantedAt,
	}
}

// IsAdmin reports whether the privileged capability was granted.
func (v UserView) IsAdmin() bool {
	return v.AdminGrantedAt != nil && !v.AdminGrantedAt.IsZero()
}

// VideoState is the upload lifecycle state of a Video.
type VideoState string

const (
	// VideoStateUploading is the initial, non-visible state.
	VideoStateUploading VideoState = "UPLOADING"
	// VideoStateVisible is reached only through upload confirmation.
	VideoStateVisible VideoState = "VISIBLE"
	// VideoStateFailed marks an upload that will never complete.
	VideoStateFailed VideoState = "FAILED"
)

// Valid reports whether s is a known state.
func (s VideoState) Valid() bool {
	switch s {
	case VideoStateUploading, VideoStateVisible, VideoStateFailed:
		return true
	default:
		return false
	}
}

// Video is the media record owned by the video service.
type Video struct {
	ID          ObjectID   `json:"id"`
	UserID      string     `json:"userId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	State       VideoState `json:"videoState"`
	FileID      *ObjectID  `json:"videoFileId"`
}

// Visible reports whether the video is published.
func (v Video) Visible() bool {
	return v.State == VideoStateVisible
}

// HasFile reports whether a file reference has been assigned.
func (v Video) HasFile() bool {
	return v.FileID != nil && *v.FileID != ""
}

// ObjectID is an identifier issued by a downstream service. Some services
// emit numeric ids, so both JSON strings and numbers are accepted; it is
// always rendered as a string.
type ObjectID string

func (id ObjectID) String() string { return string(id) }

// UnmarshalJSON accepts a string or a number.
func (id *ObjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("object id: empty value")
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("object id: %w", err)
		}
		*id = ObjectID(s)
		return nil
	case 'n':
		if string(data) == "null" {
			return nil
		}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err == nil {
			if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
				*id = ObjectID(n.String())
				return nil
			}
		}
	}
	return fmt.Errorf("object id: unsupported value %s", data)
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
