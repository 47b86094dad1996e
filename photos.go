package caresync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// PhotosClient uploads and manages event photos.
type PhotosClient struct{ c *Client }

// Upload attaches a photo to an event. While offline, or when the upload
// fails at the transport level, the bytes are queued durably and an
// optimistic Photo is returned. A photo attached to a not-yet-synced event
// waits in the queue until the event's create replays.
func (p *PhotosClient) Upload(ctx context.Context, eventID, filename string, r io.Reader) (*Photo, error) {
	blob, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	mimeType := http.DetectContentType(blob)

	if p.c.Online() {
		photo, err := p.uploadBlob(ctx, eventID, filename, mimeType, blob)
		if err == nil {
			return photo, nil
		}
		if !IsNetworkError(err) {
			return nil, err
		}
	}

	queued, err := p.c.photoQueue.Enqueue(ctx, eventID, filename, mimeType, blob)
	if err != nil {
		return nil, err
	}
	p.c.recomputeStatus(ctx)

	stamp := p.c.now().UTC().Format(time.RFC3339)
	return &Photo{
		ID:        "temp_photo_" + queued.ID,
		EventID:   eventID,
		Filename:  filename,
		SizeBytes: int64(len(blob)),
		MimeType:  mimeType,
		CreatedAt: stamp,
		Offline:   true,
		QueueID:   queued.ID,
	}, nil
}

// uploadBlob performs the multipart POST, with the same single
// 401→refresh→replay cycle the JSON path gets.
func (p *PhotosClient) uploadBlob(ctx context.Context, eventID, filename, mimeType string, blob []byte) (*Photo, error) {
	return p.uploadBlobRetry(ctx, eventID, filename, mimeType, blob, false)
}

func (p *PhotosClient) uploadBlobRetry(ctx context.Context, eventID, filename, mimeType string, blob []byte, hasRetried bool) (*Photo, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(blob); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := w.WriteField("event_id", eventID); err != nil {
		return nil, fmt.Errorf("write event_id field: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.c.baseURL+"/photos/", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if tok := p.c.creds.access(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := p.c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		if !hasRetried {
			if cred := p.c.refreshSession(ctx); cred != nil && cred.AccessToken != "" {
				return p.uploadBlobRetry(ctx, eventID, filename, mimeType, blob, true)
			}
		}
		p.c.invalidateSession(ctx)
		return nil, &AuthError{Reason: "session expired"}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		herr := &HTTPError{Status: resp.StatusCode}
		if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
			var payload struct {
				Detail string `json:"detail"`
			}
			_ = json.Unmarshal(data, &payload)
			herr.Detail = payload.Detail
		}
		return nil, herr
	}

	var photo Photo
	if err := json.Unmarshal(data, &photo); err != nil {
		return nil, err
	}
	return &photo, nil
}

// ListForEvent returns the photos attached to an event.
func (p *PhotosClient) ListForEvent(ctx context.Context, eventID string) ([]Photo, error) {
	data, err := p.c.cachedGet(ctx, "/photos/event/"+eventID, "photos_"+eventID)
	if err != nil {
		return nil, err
	}
	photos, err := decodeJSON[[]Photo](data)
	if err != nil {
		return nil, err
	}
	return *photos, nil
}

// Count returns how many photos the server holds for an event.
func (p *PhotosClient) Count(ctx context.Context, eventID string) (*PhotoCount, error) {
	data, err := p.c.cachedGet(ctx, "/photos/event/"+eventID+"/count", "photo_count_"+eventID)
	if err != nil {
		return nil, err
	}
	return decodeJSON[PhotoCount](data)
}

// Delete removes a photo, queueing the delete while offline.
func (p *PhotosClient) Delete(ctx context.Context, id string) (*SuccessResult, error) {
	data, err := p.c.do(ctx, "/photos/"+id, RequestOptions{
		Method:         http.MethodDelete,
		QueueIfOffline: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeJSON[SuccessResult](data)
}

// PendingCount returns how many queued uploads target an event, counting a
// temporary event ID the same as its eventual real one.
func (p *PhotosClient) PendingCount(ctx context.Context, eventID string) (int, error) {
	return p.c.photoQueue.PendingCountForEvent(ctx, eventID)
}
