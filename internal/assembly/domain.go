package assembly

import (
	"errors"
	"time"
)

// TaskStatus tracks one assembly task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
)

// IssueStatus tracks a reported assembly problem.
type IssueStatus string

const (
	IssueOpen     IssueStatus = "open"
	IssueResolved IssueStatus = "resolved"
)

// Issue is a problem found during assembly. Type and fault source come from
// the code catalog.
type Issue struct {
	ID          string      `json:"id"`
	Type        string      `json:"type"`
	FaultSource string      `json:"fault_source"`
	Description string      `json:"description,omitempty"`
	Status      IssueStatus `json:"status"`
	Resolution  string      `json:"resolution,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty"`
}

// DelayRecord documents a postponed task date.
type DelayRecord struct {
	ID                  string    `json:"id"`
	OriginalDate        time.Time `json:"original_date"`
	NewDate             time.Time `json:"new_date"`
	DelayDays           int       `json:"delay_days"`
	Reason              string    `json:"reason"`
	ResponsiblePersonID string    `json:"responsible_person_id"`
	CreatedAt           time.Time `json:"created_at"`
}

// Task is one role-stage of a job's assembly. Photo fields hold document
// tags: at least one "before" tag to start, one "after" tag to complete, and
// the customer signature tag on the last stage of each role.
type Task struct {
	ID         string `json:"id"`
	JobID      string `json:"job_id"`
	RoleID     string `json:"role_id"`
	RoleName   string `json:"role_name"`
	Stage      string `json:"stage"`
	StageIndex int    `json:"stage_index"`
	StageCount int    `json:"stage_count"`

	Status        TaskStatus `json:"status"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	AssigneeID    string     `json:"assignee_id,omitempty"`

	PhotosBefore      []string `json:"photos_before,omitempty"`
	PhotosAfter       []string `json:"photos_after,omitempty"`
	CustomerSignature string   `json:"customer_signature,omitempty"`

	Issues         []Issue       `json:"issues,omitempty"`
	Delays         []DelayRecord `json:"delays,omitempty"`
	TotalDelayDays int           `json:"total_delay_days"`

	Notes       string     `json:"notes,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsLastStage reports whether this task ends its role's sequence.
func (t *Task) IsLastStage() bool {
	return t.StageIndex == t.StageCount-1
}

// OpenIssues counts unresolved issues on the task.
func (t *Task) OpenIssues() int {
	var n int
	for _, issue := range t.Issues {
		if issue.Status == IssueOpen {
			n++
		}
	}
	return n
}

// RoleProgress is one role's completion ratio.
type RoleProgress struct {
	RoleID    string  `json:"role_id"`
	RoleName  string  `json:"role_name"`
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	Ratio     float64 `json:"ratio"`
}

// Progress aggregates a job's assembly state.
type Progress struct {
	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	PendingIssues  int            `json:"pending_issues"`
	AllCompleted   bool           `json:"all_completed"`
	Roles          []RoleProgress `json:"roles"`
}

var (
	// ErrTaskNotFound indicates an unknown task id.
	ErrTaskNotFound = errors.New("assembly: task not found")
	// ErrIssueNotFound indicates an unknown issue id.
	ErrIssueNotFound = errors.New("assembly: issue not found")
	// ErrTasksExist indicates tasks were already created for the job.
	ErrTasksExist = errors.New("assembly: tasks already created for job")
	// ErrPhotoRequired indicates a missing photo tag.
	ErrPhotoRequired = errors.New("assembly: photo tag required")
	// ErrSignatureRequired indicates a missing customer signature on the
	// last stage.
	ErrSignatureRequired = errors.New("assembly: customer signature required on last stage")
	// ErrStageOrder indicates an earlier stage of the role is not done.
	ErrStageOrder = errors.New("assembly: previous stage not completed")
	// ErrTaskState indicates the operation does not apply in the current
	// task status.
	ErrTaskState = errors.New("assembly: operation not allowed in current task state")
	// ErrOpenIssues indicates unresolved issues block completion.
	ErrOpenIssues = errors.New("assembly: open issues block completion")
	// ErrDelayReasonRequired indicates a postponement without a reason.
	ErrDelayReasonRequired = errors.New("assembly: delay reason and responsible person required when postponing")
)
