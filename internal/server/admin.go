package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"fieldline/internal/domain"
	"fieldline/internal/engine"
	"fieldline/internal/repo"
)

func registerWorkers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-worker",
		Method:        http.MethodPost,
		Path:          "/admin/workers",
		Summary:       "Register a field worker",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkerRequest `json:"body"`
	}) (*struct {
		Body WorkerResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "worker.manage")
		if err != nil {
			return nil, handleError(err)
		}
		u, err := e.AddWorker(ctx, engine.WorkerCreateOptions{
			Username:    input.Body.Username,
			PhoneNumber: input.Body.PhoneNumber,
			ActorID:     p.Username,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkerResponse `json:"body"`
		}{Body: workerResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-workers",
		Method:      http.MethodGet,
		Path:        "/admin/workers",
		Summary:     "List workers",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []WorkerResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "worker.manage"); err != nil {
			return nil, handleError(err)
		}
		users, err := e.ListWorkers(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]WorkerResponse, 0, len(users))
		for _, u := range users {
			out = append(out, workerResponse(u))
		}
		return &struct {
			Body []WorkerResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-worker",
		Method:      http.MethodGet,
		Path:        "/admin/workers/{username}",
		Summary:     "Get worker",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Username string `path:"username"`
	}) (*struct {
		Body WorkerResponse `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "worker.manage"); err != nil {
			return nil, handleError(err)
		}
		u, err := e.GetWorker(ctx, input.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkerResponse `json:"body"`
		}{Body: workerResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-worker-status",
		Method:      http.MethodPatch,
		Path:        "/admin/workers/{username}/status",
		Summary:     "Set worker status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Username string                 `path:"username"`
		Body     SetWorkerStatusRequest `json:"body"`
	}) (*struct {
		Body WorkerResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "worker.manage")
		if err != nil {
			return nil, handleError(err)
		}
		u, err := e.SetWorkerStatus(ctx, input.Username, input.Body.Status, p.Username)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WorkerResponse `json:"body"`
		}{Body: workerResponse(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-worker",
		Method:        http.MethodDelete,
		Path:          "/admin/workers/{username}",
		Summary:       "Remove worker",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Username string `path:"username"`
	}) (*struct{}, error) {
		p, err := requirePermission(ctx, "worker.manage")
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveWorker(ctx, input.Username, p.Username); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerAudit(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit-logs",
		Method:      http.MethodGet,
		Path:        "/admin/audit-logs",
		Summary:     "List audit entries, newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Action string `query:"action"`
		UserID string `query:"user_id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedAudit `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, "audit.read"); err != nil {
			return nil, handleError(err)
		}
		if input.Action != "" && !domain.AuditAction(input.Action).Valid() {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "unknown action", map[string]any{"action": input.Action})
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.ListAudit(ctx, repo.AuditFilters{
			Action:   input.Action,
			UserID:   input.UserID,
			Limit:    limit + 1,
			CursorID: cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedAudit{Items: []domain.AuditEntry{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedAudit `json:"body"`
		}{Body: resp}, nil
	})
}

func registerSMS(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "send-sms",
		Method:      http.MethodPost,
		Path:        "/admin/sms",
		Summary:     "Send an SMS to a worker or phone number",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body SendSMSRequest `json:"body"`
	}) (*struct {
		Body SMSResponse `json:"body"`
	}, error) {
		p, err := requirePermission(ctx, "sms.send")
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.SendSMS(ctx, p.Username, input.Body.Recipient, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SMSResponse `json:"body"`
		}{Body: smsResponse(res)}, nil
	})
}
