package sim

// Task is one unit of assignable work: move a robot to a node, perform
// a pick/drop/replenish/putaway, or transport between two nodes. Orders decompose into one or more Tasks at generation time.
type Task struct {
	ID       TaskID
	Kind     TaskKind
	Status   TaskStatus
	OrderID  OrderID
	SKU      SKUID
	Quantity int

	FromNode NodeID
	ToNode   NodeID

	AssignedRobot RobotID
	HasRobot      bool

	CreatedAt  Time
	AssignedAt Time
	StartedAt  Time
	DoneAt     Time
	DueAt      Time
	HasDue     bool

	Attempts int
}

// Assign marks the task Assigned to robot at time t.
func (t *Task) Assign(robot RobotID, at Time) {
	invariant(t.Status == TaskPending, "task %d assigned from non-pending status %v", t.ID, t.Status)
	t.Status = TaskAssigned
	t.AssignedRobot = robot
	t.HasRobot = true
	t.AssignedAt = at
}

// Start marks the task InProgress at time t.
func (t *Task) Start(at Time) {
	invariant(t.Status == TaskAssigned, "task %d started from non-assigned status %v", t.ID, t.Status)
	t.Status = TaskInProgress
	t.StartedAt = at
}

// Complete marks the task Completed at time t.
func (t *Task) Complete(at Time) {
	invariant(t.Status == TaskInProgress, "task %d completed from non-in-progress status %v", t.ID, t.Status)
	t.Status = TaskCompleted
	t.DoneAt = at
}

// Fail marks the task Failed at time t. The Task itself does not
// requeue, and nothing in the kernel or allocator requeues or replaces
// a failed task.
func (t *Task) Fail(at Time) {
	t.Status = TaskFailed
	t.DoneAt = at
}

// IsLate reports whether t has a due time that has already passed as
// of "now".
func (t *Task) IsLate(now Time) bool {
	return t.HasDue && now > t.DueAt
}
