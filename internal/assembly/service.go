package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/fenestra-erp/fenestra-erp/internal/catalog"
	"github.com/fenestra-erp/fenestra-erp/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (*Task, error)
	ListByJob(ctx context.Context, jobID string) ([]*Task, error)
	InsertBatch(ctx context.Context, tasks []*Task) error
	Update(ctx context.Context, task *Task) error
}

// CodebookPort validates issue codes against the catalog.
type CodebookPort interface {
	KnownCode(ctx context.Context, kind, code string) bool
}

// ActivitySink receives activity entries; failures must not fail the caller.
type ActivitySink interface {
	Append(ctx context.Context, jobID, action, detail string, meta map[string]any)
}

// Service implements assembly readiness tracking.
type Service struct {
	repo     RepositoryPort
	codes    CodebookPort
	activity ActivitySink
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryPort, codes CodebookPort, sink ActivitySink, logger *slog.Logger) *Service {
	return &Service{repo: repo, codes: codes, activity: sink, logger: logger, now: time.Now}
}

// RoleSpec describes one role's stage sequence. Roles without configured
// stages get a single generic stage.
type RoleSpec struct {
	RoleID   string
	RoleName string
	Stages   []string
}

// CreateTasksForJob materializes one task per role stage. Knockdown
// deliveries are handed over unassembled, so no tasks are created.
func (s *Service) CreateTasksForJob(ctx context.Context, jobID string, roles []RoleSpec, scheduled *time.Time, knockdown bool) ([]*Task, error) {
	if knockdown {
		return nil, nil
	}
	if len(roles) == 0 {
		return nil, &shared.ValidationError{Reasons: []string{"montaj için en az bir rol gereklidir"}}
	}
	existing, err := s.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, ErrTasksExist
	}

	now := s.now()
	var tasks []*Task
	for _, role := range roles {
		stages := role.Stages
		if len(stages) == 0 {
			stages = []string{"Montaj"}
		}
		for i, stage := range stages {
			tasks = append(tasks, &Task{
				ID:            shared.NewID("ASM"),
				JobID:         jobID,
				RoleID:        role.RoleID,
				RoleName:      role.RoleName,
				Stage:         stage,
				StageIndex:    i,
				StageCount:    len(stages),
				Status:        TaskPending,
				ScheduledDate: scheduled,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
	}
	if err := s.repo.InsertBatch(ctx, tasks); err != nil {
		return nil, fmt.Errorf("insert tasks: %w", err)
	}
	s.log(ctx, jobID, "assembly.tasks_created",
		fmt.Sprintf("%d montaj görevi oluşturuldu", len(tasks)),
		map[string]any{"count": len(tasks)})
	return tasks, nil
}

// StartInput begins a task. At least one "before" photo tag is required.
type StartInput struct {
	PhotoTags  []string
	AssigneeID string
}

func (s *Service) StartTask(ctx context.Context, id string, in StartInput) (*Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskPending {
		return nil, ErrTaskState
	}
	if len(in.PhotoTags) == 0 {
		return nil, ErrPhotoRequired
	}
	if err := s.checkStageOrder(ctx, task); err != nil {
		return nil, err
	}

	now := s.now()
	task.Status = TaskInProgress
	task.StartedAt = &now
	task.PhotosBefore = append(task.PhotosBefore, in.PhotoTags...)
	if in.AssigneeID != "" {
		task.AssigneeID = in.AssigneeID
	}
	task.UpdatedAt = now
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.log(ctx, task.JobID, "assembly.task_started",
		fmt.Sprintf("%s / %s görevi başladı", task.RoleName, task.Stage),
		map[string]any{"task_id": task.ID})
	return task, nil
}

// checkStageOrder ensures earlier stages of the same role are completed.
func (s *Service) checkStageOrder(ctx context.Context, task *Task) error {
	siblings, err := s.repo.ListByJob(ctx, task.JobID)
	if err != nil {
		return err
	}
	for _, other := range siblings {
		if other.RoleID != task.RoleID || other.StageIndex >= task.StageIndex {
			continue
		}
		if other.Status != TaskCompleted {
			return ErrStageOrder
		}
	}
	return nil
}

// CompleteInput finishes a task. At least one "after" photo tag is required;
// the last stage of a role additionally needs the customer's signature tag.
type CompleteInput struct {
	PhotoTags []string
	Signature string
	Note      string
}

func (s *Service) CompleteTask(ctx context.Context, id string, in CompleteInput) (*Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != TaskInProgress {
		return nil, ErrTaskState
	}
	if task.OpenIssues() > 0 {
		return nil, ErrOpenIssues
	}
	if len(in.PhotoTags) == 0 {
		return nil, ErrPhotoRequired
	}
	if task.IsLastStage() && in.Signature == "" {
		return nil, ErrSignatureRequired
	}

	now := s.now()
	task.Status = TaskCompleted
	task.CompletedAt = &now
	task.PhotosAfter = append(task.PhotosAfter, in.PhotoTags...)
	task.CustomerSignature = in.Signature
	if in.Note != "" {
		task.Notes = in.Note
	}
	task.UpdatedAt = now
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.log(ctx, task.JobID, "assembly.task_completed",
		fmt.Sprintf("%s / %s görevi tamamlandı", task.RoleName, task.Stage),
		map[string]any{"task_id": task.ID})
	return task, nil
}

// CompleteAllInput finishes every remaining task of a job in one call.
type CompleteAllInput struct {
	PhotoTags []string
	Signature string
}

// CompleteAll is the shortcut for crews that document the whole job at once.
// Open issues still block; the signature covers every last stage.
func (s *Service) CompleteAll(ctx context.Context, jobID string, in CompleteAllInput) ([]*Task, error) {
	tasks, err := s.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(in.PhotoTags) == 0 {
		return nil, ErrPhotoRequired
	}
	if in.Signature == "" {
		return nil, ErrSignatureRequired
	}
	for _, task := range tasks {
		if task.OpenIssues() > 0 {
			return nil, ErrOpenIssues
		}
	}

	now := s.now()
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].RoleID != tasks[j].RoleID {
			return tasks[i].RoleID < tasks[j].RoleID
		}
		return tasks[i].StageIndex < tasks[j].StageIndex
	})
	for _, task := range tasks {
		if task.Status == TaskCompleted {
			continue
		}
		if task.StartedAt == nil {
			task.StartedAt = &now
			task.PhotosBefore = append(task.PhotosBefore, in.PhotoTags...)
		}
		task.Status = TaskCompleted
		task.CompletedAt = &now
		task.PhotosAfter = append(task.PhotosAfter, in.PhotoTags...)
		if task.IsLastStage() {
			task.CustomerSignature = in.Signature
		}
		task.UpdatedAt = now
		if err := s.repo.Update(ctx, task); err != nil {
			return nil, fmt.Errorf("update task: %w", err)
		}
	}
	s.log(ctx, jobID, "assembly.completed_all",
		"tüm montaj görevleri tamamlandı",
		map[string]any{"count": len(tasks)})
	return tasks, nil
}

// UpdateInput mutates a task's editable fields.
type UpdateInput struct {
	AssigneeID *string
	Notes      *string
}

func (s *Service) UpdateTask(ctx context.Context, id string, in UpdateInput) (*Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status == TaskCompleted {
		return nil, ErrTaskState
	}
	if in.AssigneeID != nil {
		task.AssigneeID = *in.AssigneeID
	}
	if in.Notes != nil {
		task.Notes = *in.Notes
	}
	task.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// RescheduleInput moves the scheduled date; postponements require a reason
// and a responsible person.
type RescheduleInput struct {
	NewDate             time.Time
	Reason              string
	ResponsiblePersonID string
}

func (s *Service) Reschedule(ctx context.Context, id string, in RescheduleInput) (*Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status == TaskCompleted {
		return nil, ErrTaskState
	}
	if task.ScheduledDate != nil && in.NewDate.After(*task.ScheduledDate) {
		if in.Reason == "" || in.ResponsiblePersonID == "" {
			return nil, ErrDelayReasonRequired
		}
		days := int(in.NewDate.Sub(*task.ScheduledDate).Hours() / 24)
		task.Delays = append(task.Delays, DelayRecord{
			ID:                  shared.NewID("DLY"),
			OriginalDate:        *task.ScheduledDate,
			NewDate:             in.NewDate,
			DelayDays:           days,
			Reason:              in.Reason,
			ResponsiblePersonID: in.ResponsiblePersonID,
			CreatedAt:           s.now(),
		})
		task.TotalDelayDays += days
	}
	task.ScheduledDate = &in.NewDate
	task.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// IssueInput reports a problem found during assembly. Type and fault source
// are validated against the code catalog when one is wired.
type IssueInput struct {
	Type        string
	FaultSource string
	Description string
}

// ReportIssue opens an issue and blocks the task.
func (s *Service) ReportIssue(ctx context.Context, taskID string, in IssueInput) (*Task, error) {
	task, err := s.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.Status == TaskCompleted {
		return nil, ErrTaskState
	}
	var verr shared.ValidationError
	if in.Type == "" {
		verr.Add("sorun tipi zorunludur")
	}
	if s.codes != nil && in.Type != "" && !s.codes.KnownCode(ctx, catalog.CodeKindIssueType, in.Type) {
		verr.Add("bilinmeyen sorun tipi: %s", in.Type)
	}
	if s.codes != nil && in.FaultSource != "" && !s.codes.KnownCode(ctx, catalog.CodeKindFaultSource, in.FaultSource) {
		verr.Add("bilinmeyen hata kaynağı: %s", in.FaultSource)
	}
	if verr.HasReasons() {
		return nil, &verr
	}

	now := s.now()
	task.Issues = append(task.Issues, Issue{
		ID:          shared.NewID("AIS"),
		Type:        in.Type,
		FaultSource: in.FaultSource,
		Description: in.Description,
		Status:      IssueOpen,
		CreatedAt:   now,
	})
	if task.Status == TaskInProgress {
		task.Status = TaskBlocked
	}
	task.UpdatedAt = now
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.log(ctx, task.JobID, "assembly.issue_reported",
		fmt.Sprintf("%s / %s görevinde sorun bildirildi", task.RoleName, task.Stage),
		map[string]any{"task_id": task.ID, "type": in.Type})
	return task, nil
}

// ResolveIssue settles an issue; the task unblocks once nothing stays open.
func (s *Service) ResolveIssue(ctx context.Context, taskID, issueID, resolution string) (*Task, error) {
	task, err := s.repo.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var issue *Issue
	for i := range task.Issues {
		if task.Issues[i].ID == issueID {
			issue = &task.Issues[i]
			break
		}
	}
	if issue == nil {
		return nil, ErrIssueNotFound
	}
	if issue.Status == IssueResolved {
		return nil, &shared.ValidationError{Reasons: []string{"sorun zaten çözülmüş"}}
	}

	now := s.now()
	issue.Status = IssueResolved
	issue.Resolution = resolution
	issue.ResolvedAt = &now
	if task.Status == TaskBlocked && task.OpenIssues() == 0 {
		if task.StartedAt != nil {
			task.Status = TaskInProgress
		} else {
			task.Status = TaskPending
		}
	}
	task.UpdatedAt = now
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	s.log(ctx, task.JobID, "assembly.issue_resolved",
		fmt.Sprintf("%s / %s görevindeki sorun çözüldü", task.RoleName, task.Stage),
		map[string]any{"task_id": task.ID, "issue_id": issueID})
	return task, nil
}

// Get returns one task.
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.repo.Get(ctx, id)
}

// ListByJob returns a job's tasks ordered by role then stage.
func (s *Service) ListByJob(ctx context.Context, jobID string) ([]*Task, error) {
	tasks, err := s.repo.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].RoleID != tasks[j].RoleID {
			return tasks[i].RoleID < tasks[j].RoleID
		}
		return tasks[i].StageIndex < tasks[j].StageIndex
	})
	return tasks, nil
}

// ProgressFor aggregates per-role completion ratios. A job with no tasks is
// never "all completed": readiness comes from tasks existing and done.
func (s *Service) ProgressFor(ctx context.Context, jobID string) (Progress, error) {
	tasks, err := s.repo.ListByJob(ctx, jobID)
	if err != nil {
		return Progress{}, err
	}
	var progress Progress
	byRole := map[string]*RoleProgress{}
	var order []string
	for _, task := range tasks {
		progress.TotalTasks++
		progress.PendingIssues += task.OpenIssues()
		role, ok := byRole[task.RoleID]
		if !ok {
			role = &RoleProgress{RoleID: task.RoleID, RoleName: task.RoleName}
			byRole[task.RoleID] = role
			order = append(order, task.RoleID)
		}
		role.Total++
		if task.Status == TaskCompleted {
			role.Completed++
			progress.CompletedTasks++
		}
	}
	sort.Strings(order)
	for _, roleID := range order {
		role := byRole[roleID]
		if role.Total > 0 {
			role.Ratio = float64(role.Completed) / float64(role.Total)
		}
		progress.Roles = append(progress.Roles, *role)
	}
	progress.AllCompleted = progress.TotalTasks > 0 &&
		progress.CompletedTasks == progress.TotalTasks &&
		progress.PendingIssues == 0
	return progress, nil
}

// AllCompleted implements the assembly gate consulted by the jobs state
// machine.
func (s *Service) AllCompleted(ctx context.Context, jobID string) (bool, error) {
	progress, err := s.ProgressFor(ctx, jobID)
	if err != nil {
		return false, err
	}
	return progress.AllCompleted, nil
}

func (s *Service) log(ctx context.Context, jobID, action, detail string, meta map[string]any) {
	if s.activity == nil {
		return
	}
	s.activity.Append(ctx, jobID, action, detail, meta)
}
