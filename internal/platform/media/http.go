package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPStore talks to the hosted media API:
//
//	POST   {base}/files               multipart "file" + form fields
//	GET    {base}/files/{id}          raw content
//	GET    {base}/files/{id}/metadata JSON Metadata
//	DELETE {base}/files/{id}
//
// Every request carries the API key as a bearer token.
type HTTPStore struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPStore(baseURL, apiKey string) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		// Recordings can be large; the per-request context bounds the call.
		client: &http.Client{Timeout: 30 * time.Minute},
	}
}

func (s *HTTPStore) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	return req, nil
}

func (s *HTTPStore) do(req *http.Request) (*http.Response, error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media api %s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrObjectNotFound
	}
	if resp.StatusCode == http.StatusRequestEntityTooLarge {
		resp.Body.Close()
		return nil, ErrFileTooLarge
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("media api %s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return resp, nil
}

// Upload streams content to the API through a pipe so large recordings are
// never held in memory.
func (s *HTTPStore) Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if err := Validate(meta); err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	limit := MaxSize(meta.Category)

	go func() {
		err := writeMultipart(mw, meta, io.LimitReader(content, limit+1), limit)
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := s.newRequest(ctx, http.MethodPost, "/files", pr)
	if err != nil {
		pr.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	defer resp.Body.Close()

	var out Metadata
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode media upload response: %w", err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("media api returned no object id")
	}
	if out.Category == "" {
		out.Category = meta.Category
	}
	return &out, nil
}

func writeMultipart(mw *multipart.Writer, meta Metadata, content io.Reader, limit int64) error {
	fields := map[string]string{
		"category": meta.Category,
		"owner_id": meta.OwnerID,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return err
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, meta.FileName))
	h.Set("Content-Type", meta.ContentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	n, err := io.Copy(part, content)
	if err != nil {
		return err
	}
	if n > limit {
		return ErrFileTooLarge
	}
	return nil
}

func (s *HTTPStore) Download(ctx context.Context, id string) (io.ReadCloser, *Metadata, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := s.do(req)
	if err != nil {
		return nil, nil, err
	}

	meta := &Metadata{
		ID:          id,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}
	if _, params, err := parseDisposition(resp.Header.Get("Content-Disposition")); err == nil {
		meta.FileName = params["filename"]
	}
	if meta.Size < 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("X-Content-Length"), 10, 64); err == nil {
			meta.Size = n
		}
	}
	return resp.Body, meta, nil
}

func (s *HTTPStore) Delete(ctx context.Context, id string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, "/files/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := s.do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (s *HTTPStore) GetMetadata(ctx context.Context, id string) (*Metadata, error) {
	req, err := s.newRequest(ctx, http.MethodGet, "/files/"+url.PathEscape(id)+"/metadata", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decode media metadata: %w", err)
	}
	return &meta, nil
}
