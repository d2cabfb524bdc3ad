package task

import (
	"strconv"
	"strings"
)

// Stats is a point-in-time snapshot of a Manager.
type Stats struct {
	Initialized        bool
	Shutdown           bool
	PreferCoroutines   bool
	Submitted          int64
	Completed          int64
	Failed             int64
	Cancelled          int64
	Rejected           int64
	Running            int64
	TaskPoolAlive      bool
	IOPoolAlive        bool
	ComputePoolAlive   bool
	Queued             int
	DelayedPending     int
	DefaultScopeActive bool
	Scopes             []string
}

func (m *Manager) Stats() Stats {
	st := Stats{
		Initialized:      m.IsInitialized(),
		Shutdown:         m.IsShutdown(),
		PreferCoroutines: m.config.Load().PreferCoroutines,
		Submitted:        m.submitted.Load(),
		Completed:        m.completed.Load(),
		Failed:           m.failed.Load(),
		Cancelled:        m.cancelled.Load(),
		Rejected:         m.rejected.Load(),
		Running:          m.running.Load(),
	}
	if state := managerState(m.state.Load()); state == _STATE_NEW || state == _STATE_STARTING || m.scopes == nil {
		return st
	}
	st.TaskPoolAlive = m.taskPool.alive()
	st.IOPoolAlive = m.ioPool.alive()
	st.ComputePoolAlive = m.computePool.alive()
	st.Queued = m.taskPool.queued() + m.ioPool.queued() + m.computePool.queued()
	st.DelayedPending = m.lane.pending()
	if s, ok := m.scopes.Get(DEFAULT_SCOPE); ok {
		st.DefaultScopeActive = s.IsActive()
	}
	st.Scopes = m.scopes.Names()
	return st
}

// Pending is the number of accepted tasks that have not finished yet.
func (s Stats) Pending() int64 {
	return s.Submitted - s.Completed - s.Failed - s.Cancelled
}

func (s Stats) String() string {
	var sb strings.Builder
	sb.WriteString("TaskManager Stats:\n")
	sb.WriteString("  Initialized: " + strconv.FormatBool(s.Initialized) + "\n")
	sb.WriteString("  Shutdown: " + strconv.FormatBool(s.Shutdown) + "\n")
	sb.WriteString("  Prefer Coroutines: " + strconv.FormatBool(s.PreferCoroutines) + "\n")
	sb.WriteString("  Submitted: " + strconv.FormatInt(s.Submitted, 10) + "\n")
	sb.WriteString("  Completed: " + strconv.FormatInt(s.Completed, 10) + "\n")
	sb.WriteString("  Failed: " + strconv.FormatInt(s.Failed, 10) + "\n")
	sb.WriteString("  Cancelled: " + strconv.FormatInt(s.Cancelled, 10) + "\n")
	sb.WriteString("  Rejected: " + strconv.FormatInt(s.Rejected, 10) + "\n")
	sb.WriteString("  Running: " + strconv.FormatInt(s.Running, 10) + "\n")
	sb.WriteString("  Queued: " + strconv.Itoa(s.Queued) + "\n")
	sb.WriteString("  Pools (task/io/compute): " + alive(s.TaskPoolAlive) + "/" + alive(s.IOPoolAlive) + "/" + alive(s.ComputePoolAlive) + "\n")
	sb.WriteString("  Default Scope Active: " + strconv.FormatBool(s.DefaultScopeActive) + "\n")
	sb.WriteString("  Scopes: " + strings.Join(s.Scopes, ", "))
	return sb.String()
}

func alive(b bool) string {
	if b {
		return "alive"
	}
	return "stopped"
}
