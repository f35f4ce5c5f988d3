package timesheet

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"
)

// State and event names for the task machine. State values must stay equal to
// the TaskStatus constants; init checks it.
const (
	stateNotStarted = "Not Started"
	stateInProgress = "In Progress"
	stateCompleted  = "Completed"

	EventStart    = "start"
	EventStop     = "stop"
	EventComplete = "complete"
)

func init() {
	pairs := map[string]TaskStatus{
		stateNotStarted: StatusNotStarted,
		stateInProgress: StatusInProgress,
		stateCompleted:  StatusCompleted,
	}
	for state, status := range pairs {
		if state != string(status) {
			panic(fmt.Sprintf("task machine state %q does not match status %q", state, status))
		}
	}
}

type taskContext struct {
	TaskID TaskID
}

// TaskStateMachine guards task status changes. Completed is terminal, which is
// what keeps CompletedOn from being set twice.
type TaskStateMachine struct {
	interpreter *statekit.Interpreter[taskContext]
}

func NewTaskStateMachine(task Task) (*TaskStateMachine, error) {
	initial := task.Status
	if initial == "" {
		initial = StatusNotStarted
	}
	if !initial.Valid() {
		return nil, fmt.Errorf("task %s: status %q: %w", task.ID, initial, ErrInvalidTask)
	}

	builder := statekit.NewMachine[taskContext]("task-status").
		WithInitial(statekit.StateID(initial)).
		WithContext(taskContext{TaskID: task.ID})

	builder.State(stateNotStarted).
		On(EventStart).Target(stateInProgress).
		On(EventComplete).Target(stateCompleted).
		Done()

	builder.State(stateInProgress).
		On(EventStop).Target(stateNotStarted).
		On(EventComplete).Target(stateCompleted).
		Done()

	builder.State(stateCompleted).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("build task state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()
	return &TaskStateMachine{interpreter: interpreter}, nil
}

func (sm *TaskStateMachine) Current() TaskStatus {
	return TaskStatus(sm.interpreter.State().Value)
}

// Send fires the event and reports whether the state changed.
func (sm *TaskStateMachine) Send(event string) bool {
	before := sm.Current()
	sm.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	return sm.Current() != before
}

func eventFor(to TaskStatus) (string, bool) {
	switch to {
	case StatusInProgress:
		return EventStart, true
	case StatusNotStarted:
		return EventStop, true
	case StatusCompleted:
		return EventComplete, true
	}
	return "", false
}

// TransitionTask moves task to the target status. Setting the current status
// again is a no-op. Completing stamps CompletedOn with the given day; every
// accepted change touches UpdatedAt.
func TransitionTask(task *Task, to TaskStatus, on Date, now time.Time) error {
	if task.Status == "" {
		task.Status = StatusNotStarted
	}
	if task.Status == to {
		return nil
	}
	event, ok := eventFor(to)
	if !ok {
		return fmt.Errorf("task %s: status %q: %w", task.ID, to, ErrInvalidTask)
	}

	sm, err := NewTaskStateMachine(*task)
	if err != nil {
		return err
	}
	if !sm.Send(event) {
		return &TransitionError{TaskID: task.ID, From: task.Status, To: to}
	}

	task.Status = sm.Current()
	if task.Status == StatusCompleted && task.CompletedOn.IsZero() {
		task.CompletedOn = on
	}
	task.UpdatedAt = now
	return nil
}
