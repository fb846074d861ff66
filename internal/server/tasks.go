package server

import (
	"context"
	"mime/multipart"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/evidence"
	"fieldline/internal/repo"
)

const maxUploadBytes = 32 << 20

func registerAdminTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/admin/tasks",
		Summary:       "Assign a new task to a worker",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "task.create")
		if err != nil {
			return nil, handleError(err)
		}
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		opts := engine.TaskCreateOptions{
			Title:      input.Body.Title,
			AssignedTo: input.Body.AssignedTo,
			AssignedBy: p.Username,
		}
		if input.Body.Description != nil {
			opts.Description = *input.Body.Description
		}
		t, err := e.CreateTask(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/admin/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"pending,in_progress,completed,cannot_complete"`
		AssignedTo string `query:"assigned_to"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedTasks `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "task.read"); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		cursorTS, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.ListTasks(ctx, repo.TaskFilters{
			Status:          input.Status,
			AssignedTo:      input.AssignedTo,
			Limit:           limit + 1,
			CursorCreatedAt: cursorTS,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTasks{Items: []TaskResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		resp.Items = mapTasks(items)
		return &struct {
			Body paginatedTasks `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/admin/tasks/{id}",
		Summary:     "Get task with evidence",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "task.read"); err != nil {
			return nil, handleError(err)
		}
		t, err := e.GetTask(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/admin/tasks/{id}",
		Summary:     "Update task fields or force its status",
		Description: "Returns 409 when the new status would make the task active while its worker already holds another active task.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "task.update")
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.AdminUpdateTask(ctx, engine.TaskUpdateOptions{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			ActorID:     p.Username,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/admin/tasks/{id}",
		Summary:       "Delete task and its evidence",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		p, err := requirePermission(ctx, "task.delete")
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteTask(ctx, input.ID, p.Username); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-task",
		Method:      http.MethodPost,
		Path:        "/admin/tasks/{id}/reset",
		Summary:     "Clear evidence, return the task to pending and notify the worker",
		Description: "The reason may be empty. Returns 409 when the worker already holds another active task; evidence is left untouched in that case.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body ResetTaskRequest `json:"body"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "task.reset")
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.ResetTask(ctx, input.ID, p.Username, input.Body.Reason)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

func registerWorkerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "my-tasks",
		Method:      http.MethodGet,
		Path:        "/worker/tasks",
		Summary:     "Tasks assigned to the caller",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"pending,in_progress,completed,cannot_complete"`
	}) (*struct {
		Body []TaskResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "task.own")
		if err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListTasks(ctx, repo.TaskFilters{AssignedTo: p.Username, Status: input.Status})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []TaskResponse `json:"body"`
		}{Body: mapTasks(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "acknowledge-task",
		Method:      http.MethodPost,
		Path:        "/worker/tasks/{id}/acknowledge",
		Summary:     "Start work on a pending task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "task.acknowledge")
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.AcknowledgeTask(ctx, input.ID, p.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:  "upload-evidence",
		Method:       http.MethodPost,
		Path:         "/worker/tasks/{id}/evidence",
		Summary:      "Upload evidence images and mark the task completed",
		MaxBodyBytes: maxUploadBytes,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID      string `path:"id"`
		RawBody multipart.Form
	}) (*struct {
		Body TaskResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "task.complete")
		if err != nil {
			return nil, handleError(err)
		}
		artifacts, closeAll, err := formArtifacts(input.RawBody.File["files"])
		if err != nil {
			return nil, handleError(err)
		}
		defer closeAll()
		t, err := e.AttachEvidenceAndComplete(ctx, input.ID, p.Username, artifacts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskResponse `json:"body"`
		}{Body: taskResponse(t)}, nil
	})
}

// formArtifacts opens every uploaded file. The returned func closes them.
func formArtifacts(headers []*multipart.FileHeader) ([]evidence.Artifact, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	artifacts := make([]evidence.Artifact, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, domain.NewValidationError("files", "unreadable upload %q", fh.Filename)
		}
		files = append(files, f)
		artifacts = append(artifacts, evidence.Artifact{
			Name:      fh.Filename,
			MediaType: fh.Header.Get("Content-Type"),
			Size:      fh.Size,
			Content:   f,
		})
	}
	return artifacts, closeAll, nil
}
