package domain

// Task statuses. Workers move a task along pending -> in_progress -> completed;
// admins may set any of the four directly.
const (
	TaskPending        = "pending"
	TaskInProgress     = "in_progress"
	TaskCompleted      = "completed"
	TaskCannotComplete = "cannot_complete"
)

// Roles and worker statuses.
const (
	RoleWorker = "worker"
	RoleAdmin  = "admin"

	UserActive             = "active"
	UserUnderInvestigation = "under_investigation"
)

// Complaint statuses shared by both complaint variants.
const (
	ComplaintPending  = "pending"
	ComplaintReviewed = "reviewed"
	ComplaintResolved = "resolved"
)

// Complaint categories for public complaints.
const (
	CategoryPoorQuality = "poor_quality"
	CategoryDelay       = "delay"
	CategoryMisconduct  = "misconduct"
	CategoryOther       = "other"
)

// IsTaskStatus reports whether s is one of the four task statuses.
func IsTaskStatus(s string) bool {
	switch s {
	case TaskPending, TaskInProgress, TaskCompleted, TaskCannotComplete:
		return true
	}
	return false
}

// IsActiveTaskStatus reports whether a task in status s counts against the
// one-active-task-per-worker rule.
func IsActiveTaskStatus(s string) bool {
	return s == TaskPending || s == TaskInProgress
}

func IsComplaintStatus(s string) bool {
	switch s {
	case ComplaintPending, ComplaintReviewed, ComplaintResolved:
		return true
	}
	return false
}

func IsComplaintCategory(s string) bool {
	switch s {
	case CategoryPoorQuality, CategoryDelay, CategoryMisconduct, CategoryOther:
		return true
	}
	return false
}

func IsUserStatus(s string) bool {
	return s == UserActive || s == UserUnderInvestigation
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      string     `json:"status" enum:"pending,in_progress,completed,cannot_complete"`
	AssignedTo  string     `json:"assigned_to"`
	AssignedBy  string     `json:"assigned_by"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
	Evidence    []Evidence `json:"evidence,omitempty"`
}

type Evidence struct {
	ID         string `json:"id"`
	TaskID     string `json:"task_id"`
	FileURL    string `json:"file_url"`
	UploadedAt string `json:"uploaded_at" format:"date-time"`
}

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Role        string `json:"role" enum:"worker,admin"`
	Status      string `json:"status" enum:"active,under_investigation"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
