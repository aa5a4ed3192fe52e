package models

import (
	"encoding/json"
	"time"
)

// Remote backend types. OneDrive exists as a declared type but every
// operation on it is rejected until an implementation lands.
const (
	RemoteTypeLocal    = "local"
	RemoteTypeSftp     = "sftp"
	RemoteTypeDrive    = "drive"
	RemoteTypeOneDrive = "onedrive"
)

// Drive provisioning modes.
const (
	DriveModeShared = "shared"
	DriveModeCustom = "custom"
)

// Remote is a named storage destination. Route is the transfer-tool
// reference backups are written under (an absolute directory for local
// targets, a "<entry>:<path>" reference otherwise). Config holds the
// transfer-tool configuration entry as JSON so it can be recreated after a
// restart or a failed update.
type Remote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	Type      string    `gorm:"not null" json:"type"`
	Route     string    `json:"route,omitempty"`
	ShareURL  string    `json:"share_url,omitempty"`
	Config    string    `gorm:"type:text" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecodeConfig returns the stored configuration entry as a map. Missing or
// malformed JSON yields an empty map.
func (r *Remote) DecodeConfig() map[string]string {
	if r.Config == "" {
		return map[string]string{}
	}
	var entry map[string]string
	if err := json.Unmarshal([]byte(r.Config), &entry); err != nil {
		return map[string]string{}
	}
	return entry
}

// SetConfig stores the configuration entry as JSON.
func (r *Remote) SetConfig(entry map[string]string) {
	if len(entry) == 0 {
		r.Config = ""
		return
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return
	}
	r.Config = string(encoded)
}

// KnownRemoteType reports whether t is one of the supported backend types.
func KnownRemoteType(t string) bool {
	switch t {
	case RemoteTypeLocal, RemoteTypeSftp, RemoteTypeDrive, RemoteTypeOneDrive:
		return true
	}
	return false
}
