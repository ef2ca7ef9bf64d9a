package model

import (
	"strings"
	"time"
)

// Address is a mailbox participant as reported by the provider.
type Address struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// String renders the address as `Name <address>` when a name is present.
func (a Address) String() string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}

// Attachment describes a file attached to a message.
type Attachment struct {
	ID          string `json:"id,omitempty"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Message is an immutable provider record. Text and HTML are only
// populated by the detail fetch, never by the listing.
type Message struct {
	ID             string       `json:"id"`
	AccountID      string       `json:"accountId,omitempty"`
	From           Address      `json:"from"`
	To             []Address    `json:"to"`
	Subject        string       `json:"subject"`
	Intro          string       `json:"intro"`
	Text           string       `json:"text,omitempty"`
	HTML           []string     `json:"html,omitempty"`
	Seen           bool         `json:"seen"`
	HasAttachments bool         `json:"hasAttachments"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	Size           int64        `json:"size"`
	DownloadURL    string       `json:"downloadUrl"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// HTMLBody joins the HTML parts of a detailed message.
func (m Message) HTMLBody() string {
	return strings.Join(m.HTML, "")
}

// APILimits is the provider quota as surfaced to the user.
type APILimits struct {
	Remaining int       `json:"remaining"`
	Total     int       `json:"total"`
	ResetTime time.Time `json:"resetTime"`
}

// DefaultAPILimits is the permissive fallback used whenever the provider
// cannot report a quota.
func DefaultAPILimits(now time.Time) APILimits {
	return APILimits{
		Remaining: 100,
		Total:     100,
		ResetTime: now.Add(24 * time.Hour),
	}
}
