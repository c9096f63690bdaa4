package progresscache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"document-processing-platform/internal/logger"
	"document-processing-platform/models"
	"document-processing-platform/utils"
)

const allTasksKey = "all_tasks"

func taskKey(id string) string   { return "task:" + id }
func resultKey(id string) string { return "result:" + id }

// Cache holds advisory task state and short-TTL extraction results. The
// catalog stays authoritative: every write here is best-effort, and callers
// must tolerate missing or stale records.
type Cache struct {
	rdb       *redis.Client
	taskTTL   time.Duration
	resultTTL time.Duration
}

func New(rdb *redis.Client, taskTTL, resultTTL time.Duration) *Cache {
	return &Cache{rdb: rdb, taskTTL: taskTTL, resultTTL: resultTTL}
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// RegisterTask seeds task:<id> and appends the id to the recent-task list.
func (c *Cache) RegisterTask(ctx context.Context, taskID, filename string, createdAt time.Time) {
	fields := map[string]interface{}{
		"task_id":    taskID,
		"status":     models.StatusPending,
		"progress":   0,
		"filename":   filename,
		"created_at": createdAt.UTC().Format(time.RFC3339),
	}

	key := taskKey(taskID)
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		logger.Warn("progress cache: register task failed", "task_id", taskID, "error", err)
		return
	}
	c.rdb.Expire(ctx, key, c.taskTTL)
	if err := c.rdb.RPush(ctx, allTasksKey, taskID).Err(); err != nil {
		logger.Warn("progress cache: task list append failed", "task_id", taskID, "error", err)
	}
}

// UpdateTask merges fields into task:<id> and refreshes its TTL.
func (c *Cache) UpdateTask(ctx context.Context, taskID string, fields map[string]interface{}) {
	key := taskKey(taskID)
	if err := c.rdb.HSet(ctx, key, fields).Err(); err != nil {
		logger.Warn("progress cache: task update failed", "task_id", taskID, "error", err)
		return
	}
	c.rdb.Expire(ctx, key, c.taskTTL)
}

// SetStage is the per-stage progress write the ingestion worker emits.
func (c *Cache) SetStage(ctx context.Context, taskID, status string, progress int) {
	c.UpdateTask(ctx, taskID, map[string]interface{}{
		"status":   status,
		"progress": progress,
	})
}

// GetTask reads task:<id>. ok is false on a miss or a cache outage; the
// caller falls back to the catalog either way.
func (c *Cache) GetTask(ctx context.Context, taskID string) (*models.TaskRecord, bool) {
	data, err := c.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil {
		logger.Warn("progress cache: task read failed", "task_id", taskID, "error", err)
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}
	return recordFromHash(taskID, data), true
}

// SetResult stores the extraction snapshot under result:<id> with the short
// result TTL. Large snapshots are gzipped before the write; extracted text
// from a big PDF can run to megabytes.
func (c *Cache) SetResult(ctx context.Context, res *models.CachedResult) {
	payload, err := json.Marshal(res)
	if err != nil {
		logger.Warn("progress cache: result marshal failed", "task_id", res.TaskID, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, resultKey(res.TaskID), utils.CompressIfLarge(payload), c.resultTTL).Err(); err != nil {
		logger.Warn("progress cache: result write failed", "task_id", res.TaskID, "error", err)
	}
}

// GetResult reads result:<id>. ok is false on a miss or a cache outage.
func (c *Cache) GetResult(ctx context.Context, taskID string) (*models.CachedResult, bool) {
	payload, err := c.rdb.Get(ctx, resultKey(taskID)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logger.Warn("progress cache: result read failed", "task_id", taskID, "error", err)
		return nil, false
	}

	payload, err = utils.DecompressIfNeeded(payload)
	if err != nil {
		logger.Warn("progress cache: result decompress failed", "task_id", taskID, "error", err)
		return nil, false
	}

	var res models.CachedResult
	if err := json.Unmarshal(payload, &res); err != nil {
		logger.Warn("progress cache: result decode failed", "task_id", taskID, "error", err)
		return nil, false
	}
	return &res, true
}

// DeleteTask removes the task hash, any cached result, and the id from the
// recent-task list. Best-effort; the authoritative delete already happened.
func (c *Cache) DeleteTask(ctx context.Context, taskID string) {
	if err := c.rdb.Del(ctx, taskKey(taskID), resultKey(taskID)).Err(); err != nil {
		logger.Warn("progress cache: task delete failed", "task_id", taskID, "error", err)
	}
	if err := c.rdb.LRem(ctx, allTasksKey, 0, taskID).Err(); err != nil {
		logger.Warn("progress cache: task list removal failed", "task_id", taskID, "error", err)
	}
}

// ListTasks pages through the recent-task list in submission order and
// hydrates each id's hash. Ids whose hashes have expired are skipped, so a
// page may come back shorter than limit.
func (c *Cache) ListTasks(ctx context.Context, offset, limit int) ([]models.TaskRecord, int64, error) {
	total, err := c.rdb.LLen(ctx, allTasksKey).Result()
	if err != nil {
		return nil, 0, err
	}

	ids, err := c.rdb.LRange(ctx, allTasksKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, 0, err
	}

	tasks := make([]models.TaskRecord, 0, len(ids))
	for _, id := range ids {
		data, err := c.rdb.HGetAll(ctx, taskKey(id)).Result()
		if err != nil {
			return nil, 0, err
		}
		if len(data) == 0 {
			continue // hash expired; advisory list is allowed to be stale
		}
		tasks = append(tasks, *recordFromHash(id, data))
	}

	return tasks, total, nil
}

func recordFromHash(taskID string, data map[string]string) *models.TaskRecord {
	rec := &models.TaskRecord{
		TaskID:    taskID,
		Status:    data["status"],
		Filename:  data["filename"],
		CreatedAt: data["created_at"],
	}
	if p, err := strconv.Atoi(data["progress"]); err == nil {
		rec.Progress = p
	}
	if v := data["started_at"]; v != "" {
		rec.StartedAt = &v
	}
	if v := data["completed_at"]; v != "" {
		rec.CompletedAt = &v
	}
	if v := data["error"]; v != "" {
		rec.Error = &v
	}
	return rec
}
