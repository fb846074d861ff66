package server

import (
	"fieldline/internal/domain"
	"fieldline/internal/notify"
)

// Request payloads

type CreateTaskRequest struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	AssignedTo  string  `json:"assigned_to"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"pending,in_progress,completed,cannot_complete"`
}

type ResetTaskRequest struct {
	Reason string `json:"reason,omitempty" doc:"Shown to the worker; may be empty"`
}

type CreateWorkerRequest struct {
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
}

type SetWorkerStatusRequest struct {
	Status string `json:"status" enum:"active,under_investigation"`
}

type SetComplaintStatusRequest struct {
	Status string `json:"status" enum:"pending,reviewed,resolved"`
}

type EmployeeComplaintRequest struct {
	Description string `json:"description"`
}

type SendSMSRequest struct {
	Recipient string `json:"recipient" doc:"Worker username or phone number"`
	Message   string `json:"message"`
}

type DevLoginRequest struct {
	Username string `json:"username"`
}

// Responses

type TaskResponse struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Status      string             `json:"status" enum:"pending,in_progress,completed,cannot_complete"`
	AssignedTo  string             `json:"assigned_to"`
	AssignedBy  string             `json:"assigned_by"`
	CreatedAt   string             `json:"created_at" format:"date-time"`
	UpdatedAt   string             `json:"updated_at" format:"date-time"`
	Evidence    []EvidenceResponse `json:"evidence"`
}

type EvidenceResponse struct {
	ID         string `json:"id"`
	FileURL    string `json:"file_url"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type paginatedTasks struct {
	Items      []TaskResponse `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

type WorkerResponse struct {
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number"`
	Status      string `json:"status" enum:"active,under_investigation"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type paginatedAudit struct {
	Items      []domain.AuditEntry `json:"items"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

type SMSResponse struct {
	Delivered   bool   `json:"delivered"`
	Recipient   string `json:"recipient"`
	Status      string `json:"status,omitempty"`
	ProviderRef string `json:"provider_ref,omitempty"`
}

type WhoAmIResponse struct {
	Username    string   `json:"username"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Source      string   `json:"source"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in" doc:"Seconds until the token expires"`
}

func taskResponse(t domain.Task) TaskResponse {
	resp := TaskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		AssignedTo:  t.AssignedTo,
		AssignedBy:  t.AssignedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Evidence:    make([]EvidenceResponse, 0, len(t.Evidence)),
	}
	for _, ev := range t.Evidence {
		resp.Evidence = append(resp.Evidence, EvidenceResponse{ID: ev.ID, FileURL: ev.FileURL, UploadedAt: ev.UploadedAt})
	}
	return resp
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func workerResponse(u domain.User) WorkerResponse {
	return WorkerResponse{Username: u.Username, PhoneNumber: u.PhoneNumber, Status: u.Status, CreatedAt: u.CreatedAt}
}

func smsResponse(r notify.Result) SMSResponse {
	return SMSResponse{Delivered: r.Delivered, Recipient: r.Recipient, Status: r.Status, ProviderRef: r.ProviderRef}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
