package models

import "time"

// Notification is an in-app notification created by a flow.
type Notification struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	UserID    string         `json:"user_id,omitempty"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Link      string         `json:"link,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Job is the minimal job record flows can create or move between statuses. The rest
// of the job lives in Data.
type Job struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Title     string         `json:"title"`
	Status    string         `json:"status"`
	ClientID  string         `json:"client_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Email is an outbound message handed to an EmailSender.
type Email struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	HTML    bool   `json:"html,omitempty"`
}

// SMS is an outbound text message handed to an SmsSender.
type SMS struct {
	To   string `json:"to"`
	Body string `json:"body"`
}
