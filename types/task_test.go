package types

import "testing"

func TestNewTaskAndSubtask(t *testing.T) {
	t.Parallel()

	task := NewTask("ship the release")
	if task.ID == "" {
		t.Fatalf("task ID must be minted")
	}
	if task.Objective != "ship the release" {
		t.Fatalf("objective not preserved: %q", task.Objective)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Fatalf("timestamps must be set")
	}

	st := NewSubtask("write changelog")
	if st.ID == "" {
		t.Fatalf("subtask ID must be minted")
	}
	if st.Status != StatusPending {
		t.Fatalf("new subtasks start pending, got %s", st.Status)
	}
	if st.RetryCount != 0 {
		t.Fatalf("new subtasks start with zero retries")
	}
}
