package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Anjos3/agente-seguimiento/internal/domain"
)

func TestErrorCodes(t *testing.T) {
	tests := []struct {
		err  domain.Coder
		code string
	}{
		{&domain.TaskNotFoundError{TaskID: "t1"}, "TASK_NOT_FOUND"},
		{&domain.TaskClosedError{TaskID: "t1", Status: domain.StatusCompleted}, "TASK_CLOSED"},
		{&domain.AlreadyInProgressError{TaskID: "t1"}, "ALREADY_IN_PROGRESS"},
		{&domain.AnotherTaskActiveError{ActiveID: "t2", ActiveName: "other"}, "ANOTHER_TASK_ACTIVE"},
		{&domain.NotInProgressError{TaskID: "t1", Status: domain.StatusPending}, "NOT_IN_PROGRESS"},
		{&domain.AlreadyCompletedError{TaskID: "t1"}, "ALREADY_COMPLETED"},
		{&domain.TaskCancelledError{TaskID: "t1"}, "TASK_CANCELLED"},
		{&domain.TaskInProgressError{TaskID: "t1"}, "TASK_IN_PROGRESS"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := tt.err.Code(); got != tt.code {
				t.Errorf("Code() = %q, want %q", got, tt.code)
			}
			if tt.err.Error() == "" {
				t.Error("Error() is empty")
			}
		})
	}
}

func TestErrorCode_Wrapped(t *testing.T) {
	err := fmt.Errorf("engine: %w", &domain.AnotherTaskActiveError{ActiveID: "t2", ActiveName: "deploy"})
	code, ok := domain.ErrorCode(err)
	if !ok || code != "ANOTHER_TASK_ACTIVE" {
		t.Errorf("ErrorCode() = %q, %v; want ANOTHER_TASK_ACTIVE, true", code, ok)
	}
}

func TestErrorCode_Infrastructure(t *testing.T) {
	if code, ok := domain.ErrorCode(errors.New("connection refused")); ok {
		t.Errorf("ErrorCode() = %q, true; want false for infrastructure errors", code)
	}
}

func TestTaskNotFound_NoActiveTask(t *testing.T) {
	err := &domain.TaskNotFoundError{}
	if got := err.Error(); got != "no active task" {
		t.Errorf("Error() = %q, want %q", got, "no active task")
	}
}

func TestAnotherTaskActive_NameInMessage(t *testing.T) {
	err := &domain.AnotherTaskActiveError{ActiveID: "t2", ActiveName: "write report"}
	var coder domain.Coder
	if !errors.As(err, &coder) {
		t.Fatal("AnotherTaskActiveError does not satisfy Coder")
	}
	if want := `another task is already active: "write report"`; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
