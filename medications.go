package caresync

import (
	"context"
	"net/http"
	"net/url"
)

// MedicationsClient manages tracked medications and their reminders.
type MedicationsClient struct{ c *Client }

// List returns medications, optionally scoped to one recipient.
func (m *MedicationsClient) List(ctx context.Context, recipientID string) ([]Medication, error) {
	endpoint := "/medications/"
	key := "medications_all"
	if recipientID != "" {
		endpoint += "?care_recipient_id=" + url.QueryEscape(recipientID)
		key = "medications_" + recipientID
	}
	data, err := m.c.cachedGet(ctx, endpoint, key)
	if err != nil {
		return nil, err
	}
	meds, err := decodeJSON[[]Medication](data)
	if err != nil {
		return nil, err
	}
	return *meds, nil
}

// Create adds a medication. Queued while offline.
func (m *MedicationsClient) Create(ctx context.Context, med map[string]any) (*Medication, error) {
	data, err := m.c.do(ctx, "/medications/", RequestOptions{
		Method:         http.MethodPost,
		Body:           med,
		QueueIfOffline: true,
		CacheKey:       "medication",
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[Medication](data)
}

// Update patches a medication. Queued while offline.
func (m *MedicationsClient) Update(ctx context.Context, id string, updates map[string]any) (*Medication, error) {
	data, err := m.c.do(ctx, "/medications/"+id, RequestOptions{
		Method:         http.MethodPatch,
		Body:           updates,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[Medication](data)
}

// Delete removes a medication. Queued while offline.
func (m *MedicationsClient) Delete(ctx context.Context, id string) (*SuccessResult, error) {
	data, err := m.c.do(ctx, "/medications/"+id, RequestOptions{
		Method:         http.MethodDelete,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[SuccessResult](data)
}

// Reminders returns the reminder schedules, optionally for one recipient.
func (m *MedicationsClient) Reminders(ctx context.Context, recipientID string) ([]MedReminder, error) {
	endpoint := "/med-reminders/"
	key := "med_reminders_all"
	if recipientID != "" {
		endpoint += "?care_recipient_id=" + url.QueryEscape(recipientID)
		key = "med_reminders_" + recipientID
	}
	data, err := m.c.cachedGet(ctx, endpoint, key)
	if err != nil {
		return nil, err
	}
	reminders, err := decodeJSON[[]MedReminder](data)
	if err != nil {
		return nil, err
	}
	return *reminders, nil
}

// CreateReminder adds a reminder schedule.
func (m *MedicationsClient) CreateReminder(ctx context.Context, reminder map[string]any) (*MedReminder, error) {
	data, err := m.c.do(ctx, "/med-reminders/", RequestOptions{
		Method: http.MethodPost,
		Body:   reminder,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[MedReminder](data)
}

// UpdateReminder patches a reminder schedule.
func (m *MedicationsClient) UpdateReminder(ctx context.Context, id string, updates map[string]any) (*MedReminder, error) {
	data, err := m.c.do(ctx, "/med-reminders/"+id, RequestOptions{
		Method: http.MethodPatch,
		Body:   updates,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[MedReminder](data)
}

// SkipReminder marks the next due dose as skipped.
func (m *MedicationsClient) SkipReminder(ctx context.Context, id string) error {
	_, err := m.c.do(ctx, "/med-reminders/"+id+"/skip", RequestOptions{
		Method: http.MethodPost,
	})
	return err
}

// LogReminderDose records the next due dose as given, producing a medication
// event server-side.
func (m *MedicationsClient) LogReminderDose(ctx context.Context, id string) error {
	_, err := m.c.do(ctx, "/med-reminders/"+id+"/log", RequestOptions{
		Method: http.MethodPost,
	})
	return err
}

// NextDue returns the upcoming doses across all reminders.
func (m *MedicationsClient) NextDue(ctx context.Context) ([]MedReminder, error) {
	data, err := m.c.cachedGet(ctx, "/med-reminders/next-due", "med_reminders_next_due")
	if err != nil {
		return nil, err
	}
	reminders, err := decodeJSON[[]MedReminder](data)
	if err != nil {
		return nil, err
	}
	return *reminders, nil
}

// CheckEarly asks whether logging a dose now would be early relative to the
// schedule, returning the server's warning payload.
func (m *MedicationsClient) CheckEarly(ctx context.Context, id string) (map[string]any, error) {
	data, err := m.c.do(ctx, "/med-reminders/"+id+"/check-early", RequestOptions{})
	if err != nil {
		return nil, err
	}
	result, err := decodeJSON[map[string]any](data)
	if err != nil {
		return nil, err
	}
	return *result, nil
}
