package caresync

import "encoding/json"

// ============================================================================
// Auth
// ============================================================================

// Credential is the token pair held for the current session.
type Credential struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type,omitempty"`
	User         *User  `json:"user,omitempty"`
}

// User is the authenticated account.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ============================================================================
// Care events
// ============================================================================

// Event is one care event: medication, feeding, diaper, demeanor, observation.
// Offline and QueueID are set only on optimistic records synthesized while
// disconnected; they never come from the server.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Timestamp   string         `json:"timestamp"`
	RecipientID string         `json:"recipient_id,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	EventData   map[string]any `json:"event_data,omitempty"`
	CreatedAt   string         `json:"created_at,omitempty"`
	UpdatedAt   string         `json:"updated_at,omitempty"`

	Offline bool   `json:"_offline,omitempty"`
	QueueID string `json:"_queueId,omitempty"`
}

// EventListParams filters List.
type EventListParams struct {
	Type        string
	Limit       int
	Offset      int
	Start       string
	End         string
	Query       string
	RecipientID string
}

// EventStats maps event type to count for the stats summary endpoint.
type EventStats map[string]int

// ============================================================================
// Photos
// ============================================================================

// Photo is the metadata for an uploaded event photo.
type Photo struct {
	ID                string         `json:"id"`
	EventID           string         `json:"event_id"`
	Filename          string         `json:"filename"`
	OriginalFilename  string         `json:"original_filename,omitempty"`
	ThumbnailFilename string         `json:"thumbnail_filename,omitempty"`
	SizeBytes         int64          `json:"size_bytes"`
	MimeType          string         `json:"mime_type"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         string         `json:"created_at,omitempty"`
	UpdatedAt         string         `json:"updated_at,omitempty"`

	Offline bool   `json:"_offline,omitempty"`
	QueueID string `json:"_queueId,omitempty"`
}

// PhotoCount is the lightweight per-event photo count.
type PhotoCount struct {
	EventID string `json:"event_id"`
	Count   int    `json:"count"`
}

// ============================================================================
// Recipients, templates, medications
// ============================================================================

// Recipient is a care recipient.
type Recipient struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	IsActive          bool     `json:"is_active"`
	EnabledCategories []string `json:"enabled_categories,omitempty"`
	CreatedAt         string   `json:"created_at,omitempty"`
	UpdatedAt         string   `json:"updated_at,omitempty"`
}

// QuickMed is a one-tap medication template.
type QuickMed struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Route     string `json:"route"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// QuickFeed is a one-tap feeding template.
type QuickFeed struct {
	ID          string `json:"id"`
	AmountML    int    `json:"amount_ml,omitempty"`
	DurationMin int    `json:"duration_min,omitempty"`
	FormulaType string `json:"formula_type,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// Medication is a tracked medication for a recipient.
type Medication struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipient_id,omitempty"`
	Name        string `json:"name"`
	Dosage      string `json:"dosage"`
	Route       string `json:"route"`
	QuickLog    bool   `json:"quick_log,omitempty"`
	IsActive    bool   `json:"is_active"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// MedReminder is a scheduled medication reminder.
type MedReminder struct {
	ID           string   `json:"id"`
	MedicationID string   `json:"medication_id"`
	RecipientID  string   `json:"recipient_id,omitempty"`
	Times        []string `json:"times,omitempty"`
	IntervalHrs  int      `json:"interval_hours,omitempty"`
	Enabled      bool     `json:"enabled"`
	NextDueAt    string   `json:"next_due_at,omitempty"`
}

// ============================================================================
// Settings, notifications, feeds
// ============================================================================

// TimezoneSetting is the account timezone.
type TimezoneSetting struct {
	Timezone string `json:"timezone"`
}

// NotificationSettings controls reminder push behavior.
type NotificationSettings struct {
	RemindersEnabled bool `json:"reminders_enabled"`
	LeadTimeMinutes  int  `json:"lead_time_minutes,omitempty"`
	QuietHoursStart  int  `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd    int  `json:"quiet_hours_end,omitempty"`
}

// PushSubscription mirrors the web-push subscription object.
type PushSubscription struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys,omitempty"`
}

// ContinuousFeed is an in-progress pump feeding session.
type ContinuousFeed struct {
	ID          string  `json:"id"`
	RecipientID string  `json:"recipient_id"`
	StartedAt   string  `json:"started_at"`
	RateMLHr    float64 `json:"rate_ml_hr,omitempty"`
	PumpTotalML float64 `json:"pump_total_ml,omitempty"`
	Active      bool    `json:"active"`
}

// ============================================================================
// Generic results
// ============================================================================

// SuccessResult is the normalized shape for empty and non-JSON success
// responses, and for offline-queued updates and deletes.
type SuccessResult struct {
	Success bool   `json:"success"`
	Offline bool   `json:"_offline,omitempty"`
	QueueID string `json:"_queueId,omitempty"`
}

func decodeJSON[T any](data json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
