package main

import (
	"context"
	"fmt"
	"time"

	"fleetd/internal/model"
	"fleetd/pkg/interfaces"
)

// newSimulatedExecutor returns the built-in executor used when fleetd runs
// standalone. It interprets a few well-known input keys so tasks can drive
// their own outcome:
//
//	sleep_ms: simulated work duration in milliseconds
//	fail:     when true the attempt fails
//	fixable:  whether a failure is retryable (default true)
//
// Deployments embedding fleetd supply their own TaskExecutor instead.
func newSimulatedExecutor() interfaces.TaskExecutor {
	return interfaces.ExecutorFunc(func(ctx context.Context, task *model.Task) *model.ExecutionResult {
		started := time.Now()

		if ms, ok := inputNumber(task.Input, "sleep_ms"); ok && ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return &model.ExecutionResult{
					Status:     model.ResultFailed,
					DurationMs: time.Since(started).Milliseconds(),
					Error:      ctx.Err().Error(),
					Fixable:    true,
				}
			}
		}

		if fail, _ := inputBool(task.Input, "fail"); fail {
			fixable := true
			if v, ok := inputBool(task.Input, "fixable"); ok {
				fixable = v
			}
			return &model.ExecutionResult{
				Status:     model.ResultFailed,
				DurationMs: time.Since(started).Milliseconds(),
				Error:      fmt.Sprintf("simulated failure for task kind %s", task.Kind),
				Fixable:    fixable,
			}
		}

		return &model.ExecutionResult{
			Status:     model.ResultCompleted,
			DurationMs: time.Since(started).Milliseconds(),
		}
	})
}

// inputNumber reads a numeric input value. JSON decoding yields float64.
func inputNumber(input map[string]interface{}, key string) (float64, bool) {
	if input == nil {
		return 0, false
	}
	switch v := input[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func inputBool(input map[string]interface{}, key string) (bool, bool) {
	if input == nil {
		return false, false
	}
	v, ok := input[key].(bool)
	return v, ok
}
