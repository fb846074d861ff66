package domain

// AuditAction is the closed set of actions written to the audit log.
type AuditAction string

const (
	ActionCreatedTask                AuditAction = "created_task"
	ActionAcknowledgedTask           AuditAction = "acknowledged_task"
	ActionUploadedTaskEvidence       AuditAction = "uploaded_task_evidence"
	ActionUpdatedTask                AuditAction = "updated_task"
	ActionTaskReset                  AuditAction = "task_reset"
	ActionDeletedTask                AuditAction = "deleted_task"
	ActionEvidenceDeleted            AuditAction = "evidence_deleted"
	ActionEvidenceDeletionFailed     AuditAction = "evidence_deletion_failed"
	ActionSMSSent                    AuditAction = "sms_notification_sent"
	ActionSMSFailed                  AuditAction = "sms_notification_failed"
	ActionAddedWorker                AuditAction = "added_worker"
	ActionUpdatedWorkerStatus        AuditAction = "updated_worker_status"
	ActionRemovedWorker              AuditAction = "removed_worker"
	ActionUpdatedComplaintStatus     AuditAction = "updated_complaint_status"
	ActionSubmittedComplaint         AuditAction = "submitted_complaint"
	ActionSubmittedEmployeeComplaint AuditAction = "submitted_employee_complaint"
)

var auditActions = map[AuditAction]struct{}{
	ActionCreatedTask:                {},
	ActionAcknowledgedTask:           {},
	ActionUploadedTaskEvidence:       {},
	ActionUpdatedTask:                {},
	ActionTaskReset:                  {},
	ActionDeletedTask:                {},
	ActionEvidenceDeleted:            {},
	ActionEvidenceDeletionFailed:     {},
	ActionSMSSent:                    {},
	ActionSMSFailed:                  {},
	ActionAddedWorker:                {},
	ActionUpdatedWorkerStatus:        {},
	ActionRemovedWorker:              {},
	ActionUpdatedComplaintStatus:     {},
	ActionSubmittedComplaint:         {},
	ActionSubmittedEmployeeComplaint: {},
}

func (a AuditAction) Valid() bool {
	_, ok := auditActions[a]
	return ok
}

type AuditEntry struct {
	ID        int64       `json:"id"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details"`
	UserID    string      `json:"user_id"`
	CreatedAt string      `json:"created_at" format:"date-time"`
}
