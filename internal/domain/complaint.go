package domain

// Complaint is one of the two complaint variants. The set is closed:
// only GeneralComplaint and EmployeeComplaint implement it.
type Complaint interface {
	ComplaintID() string
	isComplaint()
}

// GeneralComplaint is submitted by the public about a service.
type GeneralComplaint struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Category    string  `json:"category" enum:"poor_quality,delay,misconduct,other"`
	Evidence    *string `json:"evidence,omitempty"`
	Location    *string `json:"location,omitempty"`
	Status      string  `json:"status" enum:"pending,reviewed,resolved"`
	SubmittedAt string  `json:"submitted_at" format:"date-time"`
}

// EmployeeComplaint is submitted by a worker about internal conditions.
type EmployeeComplaint struct {
	ID          string `json:"id"`
	WorkerID    string `json:"worker_id"`
	Description string `json:"description"`
	Status      string `json:"status" enum:"pending,reviewed,resolved"`
	SubmittedAt string `json:"submitted_at" format:"date-time"`
}

func (c GeneralComplaint) ComplaintID() string  { return c.ID }
func (c EmployeeComplaint) ComplaintID() string { return c.ID }

func (GeneralComplaint) isComplaint()  {}
func (EmployeeComplaint) isComplaint() {}

const (
	ComplaintKindGeneral  = "general"
	ComplaintKindEmployee = "employee"
)

// ComplaintView is the unified shape both variants are listed in.
type ComplaintView struct {
	ID          string  `json:"id"`
	Kind        string  `json:"kind" enum:"general,employee"`
	Description string  `json:"description"`
	Category    *string `json:"category"`
	Status      string  `json:"status" enum:"pending,reviewed,resolved"`
	Evidence    *string `json:"evidence"`
	Location    *string `json:"location,omitempty"`
	WorkerID    *string `json:"worker_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}
