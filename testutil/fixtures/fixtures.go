// Package fixtures 提供预置的测试数据工厂。
package fixtures

import (
	"fmt"

	"github.com/BaSui01/overseer/panel"
	"github.com/BaSui01/overseer/types"
)

// Subtask returns a pending subtask whose ID equals its description, which
// keeps dependency wiring in tests readable.
func Subtask(id string, dependsOn ...string) types.Subtask {
	return types.Subtask{
		ID:          id,
		Description: id,
		Status:      types.StatusPending,
		DependsOn:   dependsOn,
	}
}

// ChainTask returns a task of n subtasks s0..s(n-1) where each depends on
// the previous one.
func ChainTask(objective string, n int) types.Task {
	task := types.NewTask(objective)
	for i := 0; i < n; i++ {
		var deps []string
		if i > 0 {
			deps = []string{fmt.Sprintf("s%d", i-1)}
		}
		task.Subtasks = append(task.Subtasks, Subtask(fmt.Sprintf("s%d", i), deps...))
	}
	return task
}

// DiamondTask returns the four-subtask diamond: top, two middles depending
// on top, and bottom depending on both middles.
func DiamondTask(objective string) types.Task {
	task := types.NewTask(objective)
	task.Subtasks = []types.Subtask{
		Subtask("top"),
		Subtask("left", "top"),
		Subtask("right", "top"),
		Subtask("bottom", "left", "right"),
	}
	return task
}

// QuestionBank returns n distinct panel questions.
func QuestionBank(n int) []panel.Question {
	bank := make([]panel.Question, n)
	for i := range bank {
		bank[i] = panel.Question{
			ID:   fmt.Sprintf("q%d", i),
			Text: fmt.Sprintf("question %d", i),
		}
	}
	return bank
}
