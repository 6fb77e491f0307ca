//go:build !gcloud

package taskqueue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"
)

type PrimindTasksClient struct {
	baseURL    string
	queueName  string
	httpClient *http.Client
	maxRetries int
}

func NewPrimindTasksClient(baseURL, queueName string, maxRetries int) *PrimindTasksClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &PrimindTasksClient{
		baseURL:   baseURL,
		queueName: queueName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: maxRetries,
	}
}

func (c *PrimindTasksClient) queueURL() string {
	if c.queueName != "" && c.queueName != "default" {
		return fmt.Sprintf("%s/tasks/%s", c.baseURL, c.queueName)
	}
	return fmt.Sprintf("%s/tasks", c.baseURL)
}

func (c *PrimindTasksClient) RegisterTrigger(ctx context.Context, task *TriggerTask) (*TaskResponse, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trigger task: %w", err)
	}

	primindReq := PrimindTaskRequest{
		Task: PrimindTask{
			Name: task.Name,
			HTTPRequest: PrimindHTTPRequest{
				Body:    base64.StdEncoding.EncodeToString(payload),
				Headers: task.Headers(),
			},
		},
	}
	if !task.ScheduleAt.IsZero() {
		primindReq.Task.ScheduleTime = task.ScheduleAt.UTC().Format(time.RFC3339Nano)
	}

	reqBody, err := json.Marshal(primindReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal primind request: %w", err)
	}

	// Single attempt. Retries belong to the caller.
	return c.doRegister(ctx, reqBody, task)
}

func (c *PrimindTasksClient) doRegister(ctx context.Context, reqBody []byte, task *TriggerTask) (*TaskResponse, error) {
	url := c.queueURL()
	slog.Debug("registering trigger to Primind Tasks",
		slog.String("url", url),
		slog.String("task_name", task.Name),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("failed to send request to Primind Tasks",
			slog.String("task_name", task.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		slog.Info("trigger task already registered",
			slog.String("task_name", task.Name),
		)
		return &TaskResponse{Name: task.Name, ScheduleTime: task.ScheduleAt}, nil
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		slog.Warn("unexpected status code from Primind Tasks",
			slog.String("task_name", task.Name),
			slog.Int("status_code", resp.StatusCode),
		)
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var primindResp PrimindTaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&primindResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	scheduleTime, _ := time.Parse(time.RFC3339Nano, primindResp.ScheduleTime)
	createTime, _ := time.Parse(time.RFC3339Nano, primindResp.CreateTime)

	slog.Info("trigger task registered to Primind Tasks",
		slog.String("task_name", primindResp.Name),
		slog.Int64("record_id", task.Payload.RecordID),
	)

	return &TaskResponse{
		Name:         primindResp.Name,
		ScheduleTime: scheduleTime,
		CreateTime:   createTime,
	}, nil
}

func (c *PrimindTasksClient) DeleteTask(ctx context.Context, taskName string) error {
	url := fmt.Sprintf("%s/%s", c.queueURL(), taskName)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 100 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.doDelete(ctx, url, taskName)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	slog.Error("all retries exhausted for task deletion",
		slog.String("task_name", taskName),
		slog.Int("max_retries", c.maxRetries),
		slog.String("error", lastErr.Error()),
	)
	return fmt.Errorf("failed to delete task after %d retries: %w", c.maxRetries, lastErr)
}

func (c *PrimindTasksClient) doDelete(ctx context.Context, url, taskName string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		slog.Info("task deleted from Primind Tasks",
			slog.String("task_name", taskName),
		)
		return nil
	case http.StatusNotFound:
		slog.Info("task not found in Primind Tasks (may have been processed)",
			slog.String("task_name", taskName),
		)
		return nil
	default:
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
}
