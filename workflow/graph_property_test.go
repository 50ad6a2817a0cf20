package workflow

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/BaSui01/overseer/types"
)

// linearChain builds a graph of n subtasks where each depends on the
// previous one.
func linearChain(n int) (*TaskGraph, error) {
	var subtasks []types.Subtask
	for i := 0; i < n; i++ {
		st := newSubtask(fmt.Sprintf("s%d", i))
		if i > 0 {
			st.DependsOn = []string{fmt.Sprintf("s%d", i-1)}
		}
		subtasks = append(subtasks, st)
	}
	return FromTask(types.Task{Subtasks: subtasks})
}

// layeredGraph builds width subtasks per layer, each depending on every
// subtask of the previous layer.
func layeredGraph(layers, width int) (*TaskGraph, error) {
	var subtasks []types.Subtask
	for l := 0; l < layers; l++ {
		var prev []string
		if l > 0 {
			for w := 0; w < width; w++ {
				prev = append(prev, fmt.Sprintf("l%d-%d", l-1, w))
			}
		}
		for w := 0; w < width; w++ {
			st := newSubtask(fmt.Sprintf("l%d-%d", l, w))
			st.DependsOn = prev
			subtasks = append(subtasks, st)
		}
	}
	return FromTask(types.Task{Subtasks: subtasks})
}

func TestProperty_ReadyNeverYieldsUnmetDependencies(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("every ready subtask has only completed dependencies", prop.ForAll(
		func(layers, width, completeUpTo int) bool {
			g, err := layeredGraph(layers, width)
			if err != nil {
				return false
			}

			// 完成前 completeUpTo 个就绪子任务, 之后检查就绪集
			for i := 0; i < completeUpTo; i++ {
				ready := g.Ready()
				if len(ready) == 0 {
					break
				}
				if err := g.MarkInProgress(ready[0].ID, "agent"); err != nil {
					return false
				}
				if err := g.MarkComplete(ready[0].ID, "done"); err != nil {
					return false
				}
			}

			for _, st := range g.Ready() {
				for _, dep := range st.DependsOn {
					depSt, err := g.Get(dep)
					if err != nil || depSt.Status != types.StatusCompleted {
						return false
					}
				}
			}
			return true
		},
		gen.IntRange(1, 4),
		gen.IntRange(1, 4),
		gen.IntRange(0, 10),
	))

	properties.TestingRun(t)
}

func TestProperty_LinearChainCompletesInOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("a linear chain exposes exactly one ready subtask until done", prop.ForAll(
		func(n int) bool {
			g, err := linearChain(n)
			if err != nil {
				return false
			}

			for i := 0; i < n; i++ {
				ready := g.Ready()
				if len(ready) != 1 {
					return false
				}
				if ready[0].ID != fmt.Sprintf("s%d", i) {
					return false
				}
				if err := g.MarkInProgress(ready[0].ID, "agent"); err != nil {
					return false
				}
				if err := g.MarkComplete(ready[0].ID, "done"); err != nil {
					return false
				}
			}
			return g.IsComplete() && len(g.Ready()) == 0
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}

func TestProperty_ReadyIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("repeated Ready calls without mutation return the same set", prop.ForAll(
		func(layers, width int) bool {
			g, err := layeredGraph(layers, width)
			if err != nil {
				return false
			}
			first := g.Ready()
			second := g.Ready()
			if len(first) != len(second) {
				return false
			}
			for i := range first {
				if first[i].ID != second[i].ID {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 5),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}
