//go:build gcloud

package config

import (
	"errors"
	"fmt"
)

// Validate requires every Cloud Tasks coordinate.
func (c *TaskQueueConfig) Validate() error {
	required := []struct {
		value string
		err   error
	}{
		{c.GCloudProjectID, ErrGCloudProjectMissing},
		{c.GCloudLocationID, ErrGCloudLocationMissing},
		{c.GCloudQueueID, ErrGCloudQueueMissing},
		{c.GCloudTargetURL, ErrTriggerTargetMissing},
	}

	var errs []error
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, r.err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("task queue configuration errors: %w", errors.Join(errs...))
	}
	return nil
}
