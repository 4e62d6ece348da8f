package assembly

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	tasks map[string]*Task
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{tasks: map[string]*Task{}}
}

func (m *memoryRepo) Get(_ context.Context, id string) (*Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	clone := *task
	return &clone, nil
}

func (m *memoryRepo) ListByJob(_ context.Context, jobID string) ([]*Task, error) {
	var out []*Task
	for _, task := range m.tasks {
		if task.JobID == jobID {
			clone := *task
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertBatch(_ context.Context, tasks []*Task) error {
	for _, task := range tasks {
		clone := *task
		m.tasks[task.ID] = &clone
	}
	return nil
}

func (m *memoryRepo) Update(_ context.Context, task *Task) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return ErrTaskNotFound
	}
	clone := *task
	m.tasks[task.ID] = &clone
	return nil
}

type allowAllCodes struct{}

func (allowAllCodes) KnownCode(context.Context, string, string) bool { return true }

type rejectCodes struct{}

func (rejectCodes) KnownCode(context.Context, string, string) bool { return false }

type nopSink struct{}

func (nopSink) Append(context.Context, string, string, string, map[string]any) {}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestService(repo *memoryRepo) *Service {
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	return NewService(repo, allowAllCodes{}, nopSink{}, logger)
}

func twoStageRoles() []RoleSpec {
	return []RoleSpec{
		{RoleID: "role-pvc", RoleName: "PVC", Stages: []string{"Kasa montajı", "Kanat ve cam"}},
		{RoleID: "role-rail", RoleName: "Korkuluk"},
	}
}

func createTasks(t *testing.T, svc *Service, jobID string) []*Task {
	t.Helper()
	tasks, err := svc.CreateTasksForJob(context.Background(), jobID, twoStageRoles(), nil, false)
	require.NoError(t, err)
	return tasks
}

func taskAt(tasks []*Task, roleID string, stageIndex int) *Task {
	for _, task := range tasks {
		if task.RoleID == roleID && task.StageIndex == stageIndex {
			return task
		}
	}
	return nil
}

func TestCreateTasksPerRoleStage(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	tasks := createTasks(t, svc, "JOB-1")
	require.Len(t, tasks, 3)

	rail := taskAt(tasks, "role-rail", 0)
	require.NotNil(t, rail)
	require.Equal(t, "Montaj", rail.Stage)
	require.True(t, rail.IsLastStage())

	pvcFirst := taskAt(tasks, "role-pvc", 0)
	require.False(t, pvcFirst.IsLastStage())

	// second creation for the same job is rejected
	_, err := svc.CreateTasksForJob(context.Background(), "JOB-1", twoStageRoles(), nil, false)
	require.ErrorIs(t, err, ErrTasksExist)
}

func TestKnockdownSkipsTaskCreation(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	tasks, err := svc.CreateTasksForJob(context.Background(), "JOB-K", twoStageRoles(), nil, true)
	require.NoError(t, err)
	require.Empty(t, tasks)

	progress, err := svc.ProgressFor(context.Background(), "JOB-K")
	require.NoError(t, err)
	require.False(t, progress.AllCompleted)
	require.Zero(t, progress.TotalTasks)
}

func TestStartRequiresPhotoAndStageOrder(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	tasks := createTasks(t, svc, "JOB-1")
	ctx := context.Background()
	first := taskAt(tasks, "role-pvc", 0)
	second := taskAt(tasks, "role-pvc", 1)

	_, err := svc.StartTask(ctx, first.ID, StartInput{})
	require.ErrorIs(t, err, ErrPhotoRequired)

	// stage two cannot start before stage one completes
	_, err = svc.StartTask(ctx, second.ID, StartInput{PhotoTags: []string{"doc-1"}})
	require.ErrorIs(t, err, ErrStageOrder)

	started, err := svc.StartTask(ctx, first.ID, StartInput{PhotoTags: []string{"doc-1"}, AssigneeID: "crew-3"})
	require.NoError(t, err)
	require.Equal(t, TaskInProgress, started.Status)
	require.Equal(t, []string{"doc-1"}, started.PhotosBefore)

	_, err = svc.CompleteTask(ctx, first.ID, CompleteInput{PhotoTags: []string{"doc-2"}})
	require.NoError(t, err)

	_, err = svc.StartTask(ctx, second.ID, StartInput{PhotoTags: []string{"doc-3"}})
	require.NoError(t, err)
}

func TestCompleteRequiresAfterPhotoAndLastStageSignature(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	tasks := createTasks(t, svc, "JOB-1")
	ctx := context.Background()
	rail := taskAt(tasks, "role-rail", 0)

	_, err := svc.StartTask(ctx, rail.ID, StartInput{PhotoTags: []string{"doc-1"}})
	require.NoError(t, err)

	_, err = svc.CompleteTask(ctx, rail.ID, CompleteInput{})
	require.ErrorIs(t, err, ErrPhotoRequired)

	// single-stage role: the task is the last stage, signature mandatory
	_, err = svc.CompleteTask(ctx, rail.ID, CompleteInput{PhotoTags: []string{"doc-2"}})
	require.ErrorIs(t, err, ErrSignatureRequired)

	done, err := svc.CompleteTask(ctx, rail.ID, CompleteInput{
		PhotoTags: []string{"doc-2"},
		Signature: "sig-1",
	})
	require.NoError(t, err)
	require.Equal(t, TaskCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
}

func TestIssueBlocksTaskAndCompletion(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	tasks := createTasks(t, svc, "JOB-1")
	ctx := context.Background()
	rail := taskAt(tasks, "role-rail", 0)

	_, err := svc.StartTask(ctx, rail.ID, StartInput{PhotoTags: []string{"doc-1"}})
	require.NoError(t, err)

	blocked, err := svc.ReportIssue(ctx, rail.ID, IssueInput{
		Type:        "scratch",
		FaultSource: "assembly",
		Description: "profil çizildi",
	})
	require.NoError(t, err)
	require.Equal(t, TaskBlocked, blocked.Status)

	_, err = svc.CompleteTask(ctx, rail.ID, CompleteInput{PhotoTags: []string{"doc-2"}, Signature: "sig"})
	require.ErrorIs(t, err, ErrTaskState)

	unblocked, err := svc.ResolveIssue(ctx, rail.ID, blocked.Issues[0].ID, "profil değiştirildi")
	require.NoError(t, err)
	require.Equal(t, TaskInProgress, unblocked.Status)
	require.Equal(t, IssueResolved, unblocked.Issues[0].Status)

	_, err = svc.CompleteTask(ctx, rail.ID, CompleteInput{PhotoTags: []string{"doc-2"}, Signature: "sig"})
	require.NoError(t, err)
}

func TestUnknownIssueCodeRejected(t *testing.T) {
	repo := newMemoryRepo()
	logger := slog.New(slog.NewTextHandler(discard{}, nil))
	svc := NewService(repo, rejectCodes{}, nopSink{}, logger)
	tasks, err := svc.CreateTasksForJob(context.Background(), "JOB-1", twoStageRoles(), nil, false)
	require.NoError(t, err)

	_, err = svc.ReportIssue(context.Background(), tasks[0].ID, IssueInput{Type: "bogus"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bogus")
}

func TestCompleteAllFinishesEverything(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	createTasks(t, svc, "JOB-1")
	ctx := context.Background()

	_, err := svc.CompleteAll(ctx, "JOB-1", CompleteAllInput{PhotoTags: []string{"doc-1"}})
	require.ErrorIs(t, err, ErrSignatureRequired)

	tasks, err := svc.CompleteAll(ctx, "JOB-1", CompleteAllInput{
		PhotoTags: []string{"doc-1"},
		Signature: "sig-1",
	})
	require.NoError(t, err)
	for _, task := range tasks {
		require.Equal(t, TaskCompleted, task.Status)
		if task.IsLastStage() {
			require.Equal(t, "sig-1", task.CustomerSignature)
		}
	}

	progress, err := svc.ProgressFor(ctx, "JOB-1")
	require.NoError(t, err)
	require.True(t, progress.AllCompleted)
}

func TestProgressRatiosPerRole(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	tasks := createTasks(t, svc, "JOB-1")
	ctx := context.Background()

	first := taskAt(tasks, "role-pvc", 0)
	_, err := svc.StartTask(ctx, first.ID, StartInput{PhotoTags: []string{"doc-1"}})
	require.NoError(t, err)
	_, err = svc.CompleteTask(ctx, first.ID, CompleteInput{PhotoTags: []string{"doc-2"}})
	require.NoError(t, err)

	progress, err := svc.ProgressFor(ctx, "JOB-1")
	require.NoError(t, err)
	require.Equal(t, 3, progress.TotalTasks)
	require.Equal(t, 1, progress.CompletedTasks)
	require.False(t, progress.AllCompleted)
	require.Len(t, progress.Roles, 2)

	for _, role := range progress.Roles {
		switch role.RoleID {
		case "role-pvc":
			require.Equal(t, 2, role.Total)
			require.Equal(t, 1, role.Completed)
			require.InDelta(t, 0.5, role.Ratio, 1e-9)
		case "role-rail":
			require.Equal(t, 1, role.Total)
			require.Zero(t, role.Completed)
			require.Zero(t, role.Ratio)
		}
	}

	done, err := svc.AllCompleted(ctx, "JOB-1")
	require.NoError(t, err)
	require.False(t, done)
}

func TestRescheduleRecordsDelay(t *testing.T) {
	svc := newTestService(newMemoryRepo())
	scheduled := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	tasks, err := svc.CreateTasksForJob(context.Background(), "JOB-1", twoStageRoles(), &scheduled, false)
	require.NoError(t, err)
	ctx := context.Background()
	task := tasks[0]

	later := scheduled.AddDate(0, 0, 3)
	_, err = svc.Reschedule(ctx, task.ID, RescheduleInput{NewDate: later})
	require.ErrorIs(t, err, ErrDelayReasonRequired)

	updated, err := svc.Reschedule(ctx, task.ID, RescheduleInput{
		NewDate:             later,
		Reason:              "ekip başka işte",
		ResponsiblePersonID: "user-7",
	})
	require.NoError(t, err)
	require.Len(t, updated.Delays, 1)
	require.Equal(t, 3, updated.Delays[0].DelayDays)
	require.Equal(t, 3, updated.TotalDelayDays)
}
