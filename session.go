package kata

import (
	"fmt"
	"sync"

	"github.com/edenmoss/kata/task"
)

// Session is the shared mutable state that tool handlers read and write
// across the life of one loop invocation: the active task manager binding,
// team membership, and background work records. It is passed by reference
// into tool constructors — never held in a package global — so multiple
// sessions can run without interference. A Session belongs to exactly one
// loop invocation at a time.
type Session struct {
	id        string
	owner     string
	workspace string

	mu         sync.Mutex
	tasks      *task.Manager
	team       *Team
	sent       []TeamMessage
	background map[string]*BackgroundTask
}

// Team is a named group of coordinating agents.
type Team struct {
	Name        string
	Description string
	Members     []string
}

// TeamMessage is one message sent through the team channel.
type TeamMessage struct {
	Type      string // "message", "broadcast", "shutdown_request"
	Recipient string
	Content   string
}

// BackgroundTask is the record of a long-running background work unit.
// Stopping one is cooperative: Status flips to "stopped" and the running
// unit is expected to poll; nothing is force-killed.
type BackgroundTask struct {
	ID     string
	Status string // "running", "completed", "stopped"
	Output string
}

// NewSession creates a session owned by the given actor identity, rooted at
// the given workspace directory.
func NewSession(owner, workspace string) *Session {
	return &Session{
		id:         NewID(),
		owner:      owner,
		workspace:  workspace,
		background: make(map[string]*BackgroundTask),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Owner returns the actor identity, used for task ownership auto-assignment.
func (s *Session) Owner() string { return s.owner }

// Workspace returns the working directory tools operate relative to.
func (s *Session) Workspace() string { return s.workspace }

// BindTasks binds the session to a task manager. Called once, after the
// task-list resolver has picked the active namespace.
func (s *Session) BindTasks(m *task.Manager) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = m
}

// Tasks returns the bound task manager, or nil if none is bound.
func (s *Session) Tasks() *task.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks
}

// CreateTeam registers a team. Creating a team that already exists is an error.
func (s *Session) CreateTeam(name, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.team != nil && s.team.Name == name {
		return fmt.Errorf("team %q already exists", name)
	}
	s.team = &Team{Name: name, Description: description}
	return nil
}

// Team returns the current team, or nil.
func (s *Session) Team() *Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.team
}

// DeleteTeam removes the team and its message history.
func (s *Session) DeleteTeam() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.team = nil
	s.sent = nil
}

// RecordMessage appends a team message to the session log.
func (s *Session) RecordMessage(m TeamMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
}

// SentMessages returns a copy of the team message log.
func (s *Session) SentMessages() []TeamMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TeamMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

// SetBackground records (or replaces) a background task.
func (s *Session) SetBackground(bt BackgroundTask) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background[bt.ID] = &bt
}

// Background looks up a background task by id. The returned record is a
// copy; readers never share memory with StopBackground's writes.
func (s *Session) Background(id string) (BackgroundTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bt, ok := s.background[id]
	if !ok {
		return BackgroundTask{}, false
	}
	return *bt, true
}

// StopBackground flags a background task as stopped. The flag is advisory:
// in-flight execution is not terminated, consumers check the status.
func (s *Session) StopBackground(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	bt, ok := s.background[id]
	if !ok {
		return false
	}
	bt.Status = "stopped"
	return true
}
