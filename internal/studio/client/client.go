package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"building-studio/internal/studio/models"
)

// ============================================================
// Upload collaborator
// ============================================================

// Uploader posts files to the image upload endpoint.
type Uploader struct {
	url    string
	client *http.Client
}

func NewUploader(url string, timeout time.Duration) *Uploader {
	return &Uploader{url: url, client: &http.Client{Timeout: timeout}}
}

// UploadImages sends files as the multipart field "files" and returns the
// URLs in the order of the response.
func (u *Uploader) UploadImages(ctx context.Context, files []*models.File) ([]models.UploadedFile, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(f.Name)))
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		part, err := writer.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", f.Name, err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("write part %s: %w", f.Name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out []models.UploadedFile
	if err := do(u.client, req, &out); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	return out, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string { return quoteEscaper.Replace(s) }

// ============================================================
// Building collaborator
// ============================================================

type BuildingService struct {
	baseURL string
	client  *http.Client
}

func NewBuildingService(baseURL string, timeout time.Duration) *BuildingService {
	return &BuildingService{baseURL: strings.TrimRight(baseURL, "/"), client: &http.Client{Timeout: timeout}}
}

func (s *BuildingService) Create(ctx context.Context, req *models.CreateBuildingRequest) (*models.Building, error) {
	var out models.Building
	if err := s.sendJSON(ctx, http.MethodPost, s.baseURL+"/buildings", req, &out); err != nil {
		return nil, fmt.Errorf("create building: %w", err)
	}
	return &out, nil
}

func (s *BuildingService) Update(ctx context.Context, id int64, req *models.UpdateBuildingRequest) (*models.Building, error) {
	var out models.Building
	url := fmt.Sprintf("%s/buildings/%d", s.baseURL, id)
	if err := s.sendJSON(ctx, http.MethodPut, url, req, &out); err != nil {
		return nil, fmt.Errorf("update building %d: %w", id, err)
	}
	return &out, nil
}

func (s *BuildingService) sendJSON(ctx context.Context, method, url string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return do(s.client, req, out)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("status %d", e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Message)
}

func do(client *http.Client, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		json.Unmarshal(data, &body)
		msg := body.Error
		if msg == "" {
			msg = body.Message
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
