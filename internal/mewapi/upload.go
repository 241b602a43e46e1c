package mewapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
)

// UploadBytes uploads a file to `/channels/:channelId/uploads` and returns
// the attachment ref to embed in a subsequent message.
func (c *Client) UploadBytes(ctx context.Context, channelID, filename, contentType string, data []byte) (AttachmentRef, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return AttachmentRef{}, fmt.Errorf("channelID is required")
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return AttachmentRef{}, fmt.Errorf("filename is required")
	}
	if len(data) == 0 {
		return AttachmentRef{}, fmt.Errorf("empty upload")
	}

	ct := strings.TrimSpace(contentType)
	if ct == "" {
		ct = "application/octet-stream"
	}

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)

	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
		h.Set("Content-Type", ct)

		part, err := writer.CreatePart(h)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, bytes.NewReader(data)); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if err := writer.Close(); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.Close()
	}()

	target := c.apiBase + "/channels/" + url.PathEscape(channelID) + "/uploads"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		_ = pw.CloseWithError(err)
		return AttachmentRef{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return AttachmentRef{}, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return AttachmentRef{}, &HTTPStatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var uploaded AttachmentRef
	if err := json.Unmarshal(body, &uploaded); err != nil {
		return AttachmentRef{}, err
	}
	if strings.TrimSpace(uploaded.Key) == "" {
		return AttachmentRef{}, fmt.Errorf("invalid upload response: missing key")
	}
	if strings.TrimSpace(uploaded.ContentType) == "" {
		uploaded.ContentType = ct
	}
	if strings.TrimSpace(uploaded.Filename) == "" {
		uploaded.Filename = filename
	}
	return uploaded, nil
}
