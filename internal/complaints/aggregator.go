// Package complaints merges public and employee complaints into one view.
package complaints

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"fieldline/internal/audit"
	"fieldline/internal/domain"
	"fieldline/internal/evidence"
	"fieldline/internal/repo"
)

// PublicActor is recorded as the audit user for anonymous submissions.
const PublicActor = "public"

type Aggregator struct {
	Repo     repo.Repo
	Audit    audit.Recorder
	Evidence evidence.Store
	Now      func() time.Time
}

func (a Aggregator) stamp() string {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// Normalize maps either complaint variant to the unified view.
func Normalize(c domain.Complaint) domain.ComplaintView {
	switch v := c.(type) {
	case domain.GeneralComplaint:
		category := v.Category
		return domain.ComplaintView{
			ID:          v.ID,
			Kind:        domain.ComplaintKindGeneral,
			Description: v.Description,
			Category:    &category,
			Status:      v.Status,
			Evidence:    v.Evidence,
			Location:    v.Location,
			CreatedAt:   v.SubmittedAt,
		}
	case domain.EmployeeComplaint:
		worker := v.WorkerID
		return domain.ComplaintView{
			ID:          v.ID,
			Kind:        domain.ComplaintKindEmployee,
			Description: v.Description,
			Status:      v.Status,
			WorkerID:    &worker,
			CreatedAt:   v.SubmittedAt,
		}
	}
	panic(fmt.Sprintf("complaints: unknown complaint type %T", c))
}

// ListAll returns both collections, newest first.
func (a Aggregator) ListAll(ctx context.Context) ([]domain.ComplaintView, error) {
	general, err := a.Repo.ListComplaints(ctx)
	if err != nil {
		return nil, err
	}
	employee, err := a.Repo.ListEmployeeComplaints(ctx, "")
	if err != nil {
		return nil, err
	}
	views := make([]domain.ComplaintView, 0, len(general)+len(employee))
	for _, c := range general {
		views = append(views, Normalize(c))
	}
	for _, c := range employee {
		views = append(views, Normalize(c))
	}
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].CreatedAt != views[j].CreatedAt {
			return views[i].CreatedAt > views[j].CreatedAt
		}
		return views[i].ID > views[j].ID
	})
	return views, nil
}

// Get looks id up in both collections.
func (a Aggregator) Get(ctx context.Context, id string) (domain.Complaint, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	g, err := a.Repo.GetComplaint(ctx, nil, id)
	if err == nil {
		return g, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	e, err := a.Repo.GetEmployeeComplaint(ctx, nil, id)
	if err != nil {
		return nil, fmt.Errorf("complaint %s: %w", id, err)
	}
	return e, nil
}

// GetGeneral looks id up among public complaints only. Employee complaint ids
// are reported as not found.
func (a Aggregator) GetGeneral(ctx context.Context, id string) (domain.GeneralComplaint, error) {
	if err := validateID(id); err != nil {
		return domain.GeneralComplaint{}, err
	}
	g, err := a.Repo.GetComplaint(ctx, nil, id)
	if err != nil {
		return domain.GeneralComplaint{}, fmt.Errorf("complaint %s: %w", id, err)
	}
	return g, nil
}

// UpdateStatus sets the status on whichever collection holds id.
func (a Aggregator) UpdateStatus(ctx context.Context, id, status, actorID string) (domain.ComplaintView, error) {
	if !domain.IsComplaintStatus(status) {
		return domain.ComplaintView{}, domain.NewValidationError("status", "invalid status %q", status)
	}
	if err := validateID(id); err != nil {
		return domain.ComplaintView{}, err
	}
	err := a.Repo.UpdateComplaintStatus(ctx, nil, id, status)
	if errors.Is(err, repo.ErrNotFound) {
		err = a.Repo.UpdateEmployeeComplaintStatus(ctx, nil, id, status)
	}
	if err != nil {
		return domain.ComplaintView{}, fmt.Errorf("complaint %s: %w", id, err)
	}
	c, err := a.Get(ctx, id)
	if err != nil {
		return domain.ComplaintView{}, err
	}
	view := Normalize(c)
	a.Audit.Record(ctx, actorID, domain.ActionUpdatedComplaintStatus,
		fmt.Sprintf("Complaint %s (%s) status set to %s", id, view.Kind, status))
	return view, nil
}

// GeneralSubmission is a public complaint with an optional image.
type GeneralSubmission struct {
	Description string
	Category    string
	Location    *string
	Attachment  *evidence.Artifact
}

func (a Aggregator) SubmitGeneral(ctx context.Context, s GeneralSubmission) (domain.GeneralComplaint, error) {
	if strings.TrimSpace(s.Description) == "" {
		return domain.GeneralComplaint{}, domain.NewValidationError("description", "description is required")
	}
	if !domain.IsComplaintCategory(s.Category) {
		return domain.GeneralComplaint{}, domain.NewValidationError("category", "invalid category %q", s.Category)
	}
	c := domain.GeneralComplaint{
		ID:          uuid.NewString(),
		Description: s.Description,
		Category:    s.Category,
		Location:    s.Location,
		Status:      domain.ComplaintPending,
		SubmittedAt: a.stamp(),
	}
	if s.Attachment != nil {
		ref, err := a.Evidence.PutBlob(ctx, "complaints", *s.Attachment)
		if err != nil {
			return domain.GeneralComplaint{}, err
		}
		c.Evidence = &ref
	}
	if err := a.Repo.InsertComplaint(ctx, nil, c); err != nil {
		return domain.GeneralComplaint{}, err
	}
	a.Audit.Record(ctx, PublicActor, domain.ActionSubmittedComplaint,
		fmt.Sprintf("Complaint %s submitted (%s)", c.ID, c.Category))
	return c, nil
}

func (a Aggregator) SubmitEmployee(ctx context.Context, workerID, description string) (domain.EmployeeComplaint, error) {
	if strings.TrimSpace(description) == "" {
		return domain.EmployeeComplaint{}, domain.NewValidationError("description", "description is required")
	}
	c := domain.EmployeeComplaint{
		ID:          uuid.NewString(),
		WorkerID:    workerID,
		Description: description,
		Status:      domain.ComplaintPending,
		SubmittedAt: a.stamp(),
	}
	if err := a.Repo.InsertEmployeeComplaint(ctx, nil, c); err != nil {
		return domain.EmployeeComplaint{}, err
	}
	a.Audit.Record(ctx, workerID, domain.ActionSubmittedEmployeeComplaint,
		fmt.Sprintf("Employee complaint %s submitted by %s", c.ID, workerID))
	return c, nil
}

func (a Aggregator) ListForWorker(ctx context.Context, workerID string) ([]domain.EmployeeComplaint, error) {
	return a.Repo.ListEmployeeComplaints(ctx, workerID)
}

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.NewValidationError("id", "invalid UUID format")
	}
	return nil
}
