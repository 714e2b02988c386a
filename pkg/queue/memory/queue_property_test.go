package memory

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"fleetd/internal/model"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestQueueOrderingProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	prioritiesGen := gen.SliceOf(gen.IntRange(0, 2)).
		SuchThat(func(v []int) bool { return len(v) > 0 && len(v) <= 50 })

	properties.Property("dequeue order is a stable sort by descending priority", prop.ForAll(
		func(priorities []int) bool {
			q := NewQueue()
			ctx := context.Background()

			for i, p := range priorities {
				task := &model.Task{
					ID:       fmt.Sprintf("task-%d", i),
					Priority: model.TaskPriority(p),
				}
				if err := q.Enqueue(ctx, task); err != nil {
					return false
				}
			}

			var got []int
			for range priorities {
				task, err := q.Dequeue(ctx, time.Second)
				if err != nil || task == nil {
					return false
				}
				var idx int
				fmt.Sscanf(task.ID, "task-%d", &idx)
				got = append(got, idx)
			}

			want := make([]int, len(priorities))
			for i := range want {
				want[i] = i
			}
			sort.SliceStable(want, func(a, b int) bool {
				return priorities[want[a]] > priorities[want[b]]
			})

			for i := range want {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		prioritiesGen,
	))

	properties.Property("depth always equals enqueued minus dequeued", prop.ForAll(
		func(enqueueCount, dequeueCount int) bool {
			q := NewQueue()
			ctx := context.Background()

			for i := 0; i < enqueueCount; i++ {
				task := &model.Task{ID: fmt.Sprintf("task-%d", i), Priority: model.PriorityNormal}
				if err := q.Enqueue(ctx, task); err != nil {
					return false
				}
			}
			taken := 0
			for i := 0; i < dequeueCount; i++ {
				task, err := q.Dequeue(ctx, 10*time.Millisecond)
				if err != nil {
					return false
				}
				if task != nil {
					taken++
				}
			}
			return q.Depth() == enqueueCount-taken
		},
		gen.IntRange(0, 30),
		gen.IntRange(0, 30),
	))

	properties.TestingRun(t)
}
