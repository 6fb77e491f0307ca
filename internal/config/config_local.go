//go:build !gcloud

package config

// Validate accepts any local setup; without PRIMIND_TASKS_URL the scheduler runs timer-only.
func (c *TaskQueueConfig) Validate() error {
	return nil
}
