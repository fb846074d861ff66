package server

import (
	"context"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/complaints"
	"fieldline/internal/domain"
)

func registerComplaints(api huma.API, agg complaints.Aggregator) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-complaint",
		Method:        http.MethodPost,
		Path:          "/complaints",
		Summary:       "Submit a public complaint with an optional image",
		DefaultStatus: http.StatusCreated,
		MaxBodyBytes:  maxUploadBytes,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		RawBody multipart.Form
	}) (*struct {
		Body domain.GeneralComplaint `json:"body"`
	}, error) {
		sub := complaints.GeneralSubmission{
			Description: formValue(&input.RawBody, "description"),
			Category:    formValue(&input.RawBody, "category"),
		}
		if loc := formValue(&input.RawBody, "location"); loc != "" {
			sub.Location = &loc
		}
		files := input.RawBody.File["file"]
		if len(files) > 1 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "at most one file is allowed", nil)
		}
		artifacts, closeAll, err := formArtifacts(files)
		if err != nil {
			return nil, handleError(err)
		}
		defer closeAll()
		if len(artifacts) == 1 {
			sub.Attachment = &artifacts[0]
		}
		c, err := agg.SubmitGeneral(ctx, sub)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.GeneralComplaint `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-complaint",
		Method:      http.MethodGet,
		Path:        "/complaints/{id}",
		Summary:     "Get a public complaint by id",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.ComplaintView `json:"body"`
	}, error) {
		c, err := agg.GetGeneral(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ComplaintView `json:"body"`
		}{Body: complaints.Normalize(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-complaints",
		Method:      http.MethodGet,
		Path:        "/admin/complaints",
		Summary:     "List public and employee complaints together",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ComplaintView `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "complaint.read"); err != nil {
			return nil, handleError(err)
		}
		views, err := agg.ListAll(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ComplaintView `json:"body"`
		}{Body: nonNilSlice(views)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-complaint-status",
		Method:      http.MethodPatch,
		Path:        "/admin/complaints/{id}/status",
		Summary:     "Set the status of either complaint kind",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body SetComplaintStatusRequest `json:"body"`
	}) (*struct {
		Body domain.ComplaintView `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "complaint.update")
		if err != nil {
			return nil, handleError(err)
		}
		view, err := agg.UpdateStatus(ctx, input.ID, input.Body.Status, p.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ComplaintView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "submit-employee-complaint",
		Method:        http.MethodPost,
		Path:          "/worker/complaints",
		Summary:       "Submit a complaint as a worker",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body EmployeeComplaintRequest `json:"body"`
	}) (*struct {
		Body domain.EmployeeComplaint `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "complaint.submit")
		if err != nil {
			return nil, handleError(err)
		}
		c, err := agg.SubmitEmployee(ctx, p.Username, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.EmployeeComplaint `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "my-complaints",
		Method:      http.MethodGet,
		Path:        "/worker/complaints",
		Summary:     "Complaints submitted by the caller",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.EmployeeComplaint `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "complaint.submit")
		if err != nil {
			return nil, handleError(err)
		}
		items, err := agg.ListForWorker(ctx, p.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.EmployeeComplaint `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func formValue(form *multipart.Form, key string) string {
	if form == nil || len(form.Value[key]) == 0 {
		return ""
	}
	return strings.TrimSpace(form.Value[key][0])
}
