package fieldlinesdk

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
	"time"
)

// Client is a minimal Fieldline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  30 * time.Second,
	}
}

type Evidence struct {
	ID         string `json:"id"`
	FileURL    string `json:"file_url"`
	UploadedAt string `json:"uploaded_at"`
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assigned_to"`
	AssignedBy  string     `json:"assigned_by"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
	Evidence    []Evidence `json:"evidence"`
}

// Complaint is the unified view of public and employee complaints.
type Complaint struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Category    *string `json:"category"`
	Status      string  `json:"status"`
	Evidence    *string `json:"evidence"`
	Location    *string `json:"location,omitempty"`
	WorkerID    *string `json:"worker_id,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type AuditEntry struct {
	ID        int64  `json:"id"`
	Action    string `json:"action"`
	Details   string `json:"details"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at"`
}

type SMSResult struct {
	Delivered   bool   `json:"delivered"`
	Recipient   string `json:"recipient"`
	ProviderRef string `json:"provider_ref,omitempty"`
	Status      string `json:"status,omitempty"`
}

// File is one upload part. MediaType must be an image type.
type File struct {
	Name      string
	MediaType string
	Content   io.Reader
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type PaginatedTasks struct {
	Items      []Task `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type PaginatedAudit struct {
	Items      []AuditEntry `json:"items"`
	NextCursor string       `json:"next_cursor"`
}

// CreateTask assigns a task to a worker.
func (c *Client) CreateTask(ctx context.Context, title, description, assignedTo string) (Task, error) {
	body := map[string]any{
		"title":       title,
		"assigned_to": assignedTo,
	}
	if description != "" {
		body["description"] = description
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, "admin/tasks", body, &resp)
	return resp, err
}

// TasksPage lists tasks; status and assignedTo are optional filters.
func (c *Client) TasksPage(ctx context.Context, status, assignedTo string, limit int, cursor string) (PaginatedTasks, error) {
	q := url.Values{}
	setQuery(q, "status", status)
	setQuery(q, "assigned_to", assignedTo)
	setQuery(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp PaginatedTasks
	err := c.do(ctx, http.MethodGet, withQuery("admin/tasks", q), nil, &resp)
	return resp, err
}

func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, "admin/tasks/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// SetTaskStatus forces a status as an admin.
func (c *Client) SetTaskStatus(ctx context.Context, id, status string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, "admin/tasks/"+url.PathEscape(id), map[string]any{"status": status}, &resp)
	return resp, err
}

// ResetTask clears evidence and returns the task to pending.
func (c *Client) ResetTask(ctx context.Context, id, reason string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "admin/tasks/"+url.PathEscape(id)+"/reset", map[string]any{"reason": reason}, &resp)
	return resp, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "admin/tasks/"+url.PathEscape(id), nil, nil)
}

// MyTasks lists tasks assigned to the authenticated worker.
func (c *Client) MyTasks(ctx context.Context) ([]Task, error) {
	var resp []Task
	err := c.do(ctx, http.MethodGet, "worker/tasks", nil, &resp)
	return resp, err
}

func (c *Client) AcknowledgeTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "worker/tasks/"+url.PathEscape(id)+"/acknowledge", nil, &resp)
	return resp, err
}

// UploadEvidence uploads images and completes the task.
func (c *Client) UploadEvidence(ctx context.Context, id string, files []File) (Task, error) {
	var resp Task
	err := c.doMultipart(ctx, "worker/tasks/"+url.PathEscape(id)+"/evidence", nil, "files", files, &resp)
	return resp, err
}

// SubmitComplaint files a public complaint. attachment may be nil.
func (c *Client) SubmitComplaint(ctx context.Context, description, category, location string, attachment *File) (Complaint, error) {
	fields := map[string]string{"description": description, "category": category}
	if location != "" {
		fields["location"] = location
	}
	var files []File
	if attachment != nil {
		files = append(files, *attachment)
	}
	var resp Complaint
	err := c.doMultipart(ctx, "complaints", fields, "file", files, &resp)
	return resp, err
}

func (c *Client) GetComplaint(ctx context.Context, id string) (Complaint, error) {
	var resp Complaint
	err := c.do(ctx, http.MethodGet, "complaints/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) Complaints(ctx context.Context) ([]Complaint, error) {
	var resp []Complaint
	err := c.do(ctx, http.MethodGet, "admin/complaints", nil, &resp)
	return resp, err
}

func (c *Client) SetComplaintStatus(ctx context.Context, id, status string) (Complaint, error) {
	var resp Complaint
	err := c.do(ctx, http.MethodPatch, "admin/complaints/"+url.PathEscape(id)+"/status", map[string]any{"status": status}, &resp)
	return resp, err
}

// AuditPage returns audit entries newest first.
func (c *Client) AuditPage(ctx context.Context, action string, limit int, cursor string) (PaginatedAudit, error) {
	q := url.Values{}
	setQuery(q, "action", action)
	setQuery(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp PaginatedAudit
	err := c.do(ctx, http.MethodGet, withQuery("admin/audit-logs", q), nil, &resp)
	return resp, err
}

// SendSMS sends a message to a worker username or phone number.
func (c *Client) SendSMS(ctx context.Context, recipient, message string) (SMSResult, error) {
	var resp SMSResult
	err := c.do(ctx, http.MethodPost, "admin/sms", map[string]any{"recipient": recipient, "message": message}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) doMultipart(ctx context.Context, endpoint string, fields map[string]string, fileField string, files []File, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, f.Name))
		h.Set("Content-Type", f.MediaType)
		part, err := w.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(endpoint), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) url(endpoint string) string {
	basePath := strings.Trim(c.BasePath, "/")
	if basePath == "" {
		basePath = "v1"
	}
	return strings.TrimRight(c.BaseURL, "/") + "/" + basePath + "/" + strings.TrimLeft(endpoint, "/")
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
