package entities

// TaskList is the in-memory, newest-first list of tasks for one session.
// Task ids are unique within a list.
type TaskList struct {
	tasks []Task
}

// NewTaskList builds a list from tasks, which must already have unique ids.
func NewTaskList(tasks []Task) (*TaskList, error) {
	if err := ValidateTasks(tasks); err != nil {
		return nil, err
	}
	return &TaskList{tasks: cloneTasks(tasks)}, nil
}

// Len returns the number of tasks.
func (l *TaskList) Len() int {
	return len(l.tasks)
}

// Prepend inserts t at the front of the list.
func (l *TaskList) Prepend(t Task) error {
	if t.Text == "" {
		return ErrEmptyTaskText
	}
	if l.index(t.ID) >= 0 {
		return ErrDuplicateTaskID
	}
	l.tasks = append([]Task{t}, l.tasks...)
	return nil
}

// Get returns a copy of the task with the given id.
func (l *TaskList) Get(id string) (Task, bool) {
	i := l.index(id)
	if i < 0 {
		return Task{}, false
	}
	return cloneTask(l.tasks[i]), true
}

// Toggle flips the completed flag and returns the updated task.
func (l *TaskList) Toggle(id string) (Task, error) {
	i := l.index(id)
	if i < 0 {
		return Task{}, ErrTaskNotFound
	}
	l.tasks[i].Completed = !l.tasks[i].Completed
	return cloneTask(l.tasks[i]), nil
}

// Remove deletes the task with the given id.
func (l *TaskList) Remove(id string) error {
	i := l.index(id)
	if i < 0 {
		return ErrTaskNotFound
	}
	l.tasks = append(l.tasks[:i], l.tasks[i+1:]...)
	return nil
}

// Replace swaps the whole content of the list.
func (l *TaskList) Replace(tasks []Task) error {
	if err := ValidateTasks(tasks); err != nil {
		return err
	}
	l.tasks = cloneTasks(tasks)
	return nil
}

// Snapshot returns a copy of all tasks in order.
func (l *TaskList) Snapshot() []Task {
	return cloneTasks(l.tasks)
}

// Filter returns copies of the tasks matching filter, in order.
func (l *TaskList) Filter(filter TaskFilter) []Task {
	out := make([]Task, 0, len(l.tasks))
	for _, t := range l.tasks {
		if t.Matches(filter) {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

// Stats counts total and completed tasks.
func (l *TaskList) Stats() Stats {
	s := Stats{Total: len(l.tasks)}
	for _, t := range l.tasks {
		if t.Completed {
			s.Completed++
		}
	}
	return s
}

func (l *TaskList) index(id string) int {
	for i := range l.tasks {
		if l.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTask(t Task) Task {
	if t.Deadline != nil {
		d := *t.Deadline
		t.Deadline = &d
	}
	return t
}

func cloneTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = cloneTask(t)
	}
	return out
}
