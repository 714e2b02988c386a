package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/interfaces"

	"gorm.io/gorm"
)

// TaskRecord is the task row shape
type TaskRecord struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement"`
	TaskID      string     `gorm:"column:task_id;type:varchar(255);not null;uniqueIndex"`
	Kind        string     `gorm:"column:kind;type:varchar(255);not null"`
	Priority    string     `gorm:"column:priority;type:varchar(20);not null;default:normal"`
	Phase       string     `gorm:"column:phase;type:varchar(20);not null;index:idx_phase"`
	Input       string     `gorm:"column:input;type:json"`
	WorkerID    string     `gorm:"column:worker_id;type:varchar(255);index:idx_worker"`
	EnqueuedAt  time.Time  `gorm:"column:enqueued_at;type:datetime(3)"`
	StartedAt   *time.Time `gorm:"column:started_at;type:datetime(3)"`
	CompletedAt *time.Time `gorm:"column:completed_at;type:datetime(3)"`
	RetryCount  int        `gorm:"column:retry_count;default:0"`
	LastError   string     `gorm:"column:last_error;type:text"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for TaskRecord
func (TaskRecord) TableName() string { return "tasks" }

func recordFromTask(task *model.Task) (*TaskRecord, error) {
	input := ""
	if task.Input != nil {
		data, err := json.Marshal(task.Input)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal task input: %w", err)
		}
		input = string(data)
	}
	return &TaskRecord{
		TaskID:      task.ID,
		Kind:        task.Kind,
		Priority:    task.Priority.String(),
		Phase:       string(task.Phase),
		Input:       input,
		WorkerID:    task.WorkerID,
		EnqueuedAt:  task.EnqueuedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		RetryCount:  task.RetryCount,
		LastError:   task.LastError,
	}, nil
}

func (r *TaskRecord) toTask() *model.Task {
	task := &model.Task{
		ID:          r.TaskID,
		Kind:        r.Kind,
		Priority:    model.ParsePriority(r.Priority),
		Phase:       model.TaskPhase(r.Phase),
		WorkerID:    r.WorkerID,
		EnqueuedAt:  r.EnqueuedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		RetryCount:  r.RetryCount,
		LastError:   r.LastError,
	}
	if r.Input != "" {
		_ = json.Unmarshal([]byte(r.Input), &task.Input)
	}
	return task
}

// TaskStore persists task records in MySQL
type TaskStore struct {
	ds *Datastore
}

// NewTaskStore creates the mysql-backed task store
func NewTaskStore(ds *Datastore) *TaskStore {
	return &TaskStore{ds: ds}
}

// Put inserts or replaces a task record
func (s *TaskStore) Put(ctx context.Context, task *model.Task) error {
	record, err := recordFromTask(task)
	if err != nil {
		return err
	}

	result := s.ds.db.WithContext(ctx).
		Where("task_id = ?", task.ID).
		Assign(map[string]interface{}{
			"kind":        record.Kind,
			"priority":    record.Priority,
			"phase":       record.Phase,
			"input":       record.Input,
			"worker_id":   record.WorkerID,
			"enqueued_at": record.EnqueuedAt,
			"retry_count": record.RetryCount,
			"last_error":  record.LastError,
		}).
		FirstOrCreate(&TaskRecord{TaskID: task.ID})
	if result.Error != nil {
		return fmt.Errorf("failed to save task: %w", result.Error)
	}
	return nil
}

// Get retrieves a task by id
func (s *TaskStore) Get(ctx context.Context, taskID string) (*model.Task, error) {
	var record TaskRecord
	err := s.ds.db.WithContext(ctx).Where("task_id = ?", taskID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("task not found: %s", taskID)
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return record.toTask(), nil
}

// Update applies named field changes to a task row
func (s *TaskStore) Update(ctx context.Context, taskID string, fields map[string]interface{}) error {
	result := s.ds.db.WithContext(ctx).Model(&TaskRecord{}).
		Where("task_id = ?", taskID).
		Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}
	return nil
}

// Query returns task records matching the filter
func (s *TaskStore) Query(ctx context.Context, filter interfaces.TaskFilter) ([]*model.Task, error) {
	query := s.ds.db.WithContext(ctx).Model(&TaskRecord{})
	if filter.Phase != "" {
		query = query.Where("phase = ?", string(filter.Phase))
	}
	if filter.WorkerID != "" {
		query = query.Where("worker_id = ?", filter.WorkerID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []TaskRecord
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	tasks := make([]*model.Task, 0, len(records))
	for i := range records {
		tasks = append(tasks, records[i].toTask())
	}
	return tasks, nil
}
