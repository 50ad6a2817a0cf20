package directory

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/overseer/types"
)

// Profile describes one registered agent.
type Profile struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Capabilities  []string      `json:"capabilities"`
	PhaseAffinity []types.Phase `json:"phase_affinity,omitempty"`
	Available     bool          `json:"available"`
	// CurrentSubtask is the subtask the agent is bound to while busy.
	// An agent holds at most one in-flight subtask.
	CurrentSubtask string `json:"current_subtask,omitempty"`
	Completed      int    `json:"completed"`
	Failed         int    `json:"failed"`
}

// SuccessRate returns completed/(completed+failed), or 1.0 for an agent
// with no history so newcomers are not penalized.
func (p Profile) SuccessRate() float64 {
	total := p.Completed + p.Failed
	if total == 0 {
		return 1.0
	}
	return float64(p.Completed) / float64(total)
}

// ScoredCandidate pairs a profile with its match score for one request.
type ScoredCandidate struct {
	Profile Profile `json:"profile"`
	Score   float64 `json:"score"`
}

// PoolStatus summarizes the directory for the console and logs.
type PoolStatus struct {
	TotalAgents     int `json:"total_agents"`
	AvailableAgents int `json:"available_agents"`
	BusyAgents      int `json:"busy_agents"`
	TotalCompleted  int `json:"total_completed"`
	TotalFailed     int `json:"total_failed"`
}

// Directory tracks agent profiles and selects the best match for a unit of
// work. Availability and counters are process-global shared state: all
// reads and writes go through one mutex so two orchestration threads can
// never both claim the same agent.
type Directory struct {
	mu     sync.Mutex
	agents map[string]*Profile
	// order preserves registration order, which is the deterministic
	// tie-break for equal scores.
	order  []string
	logger *zap.Logger
}

// New creates an empty directory.
func New(logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		agents: make(map[string]*Profile),
		logger: logger.With(zap.String("component", "agent_directory")),
	}
}

// Register adds an agent profile. Registration order is remembered and
// used for deterministic tie-breaking. Re-registering an id is an error.
func (d *Directory) Register(p Profile) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p.ID == "" {
		return types.NewError(types.ErrAgentUnknown, "agent profile with empty id")
	}
	if _, dup := d.agents[p.ID]; dup {
		return types.NewError(types.ErrAgentUnknown,
			fmt.Sprintf("agent %q already registered", p.ID))
	}
	p.Available = true
	p.CurrentSubtask = ""
	cp := p
	d.agents[p.ID] = &cp
	d.order = append(d.order, p.ID)

	d.logger.Info("agent registered",
		zap.String("agent_id", p.ID),
		zap.Strings("capabilities", p.Capabilities),
	)
	return nil
}

// Get returns a copy of an agent profile.
func (d *Directory) Get(id string) (Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.agents[id]
	if !ok {
		return Profile{}, types.NewError(types.ErrAgentUnknown,
			fmt.Sprintf("agent %q not registered", id)).WithAgent(id)
	}
	return *p, nil
}

// score computes the capability-match score for one available agent.
// Weights follow the pool's fixed rubric: 10 per overlapping capability,
// 5 for a phase-affinity hit, up to 3 for the historical success rate.
func score(p *Profile, required []string, phase types.Phase) float64 {
	s := 0.0
	caps := make(map[string]bool, len(p.Capabilities))
	for _, c := range p.Capabilities {
		caps[c] = true
	}
	for _, r := range required {
		if caps[r] {
			s += 10
		}
	}
	if phase != "" {
		for _, a := range p.PhaseAffinity {
			if a == phase {
				s += 5
				break
			}
		}
	}
	s += 3 * p.SuccessRate()
	return s
}

// Candidates returns available agents scored against the request, ranked
// descending. The sort is stable so equal scores keep registration order.
// Only candidates scoring above zero are included.
func (d *Directory) Candidates(required []string, phase types.Phase) []ScoredCandidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.candidatesLocked(required, phase)
}

func (d *Directory) candidatesLocked(required []string, phase types.Phase) []ScoredCandidate {
	var out []ScoredCandidate
	for _, id := range d.order {
		p := d.agents[id]
		if !p.Available {
			continue
		}
		if s := score(p, required, phase); s > 0 {
			out = append(out, ScoredCandidate{Profile: *p, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// FindBest returns the best available agent for the required capabilities
// and phase. When no agent scores above zero the first available agent in
// registration order is used as a fallback; when none are available at
// all, an assignment error is returned. Identical directory state and
// inputs always yield the identical winner.
func (d *Directory) FindBest(required []string, phase types.Phase) (Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ranked := d.candidatesLocked(required, phase); len(ranked) > 0 {
		return ranked[0].Profile, nil
	}
	for _, id := range d.order {
		if p := d.agents[id]; p.Available {
			return *p, nil
		}
	}
	return Profile{}, types.NewNoAgentsError()
}

// Assign claims an agent for a subtask, flipping its availability off.
// Claiming an unknown or busy agent is an assignment error. The claim is
// atomic under the directory mutex.
func (d *Directory) Assign(id, subtaskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.agents[id]
	if !ok {
		return types.NewError(types.ErrAgentUnknown,
			fmt.Sprintf("agent %q not registered", id)).WithAgent(id)
	}
	if !p.Available {
		return types.NewError(types.ErrAgentUnavailable,
			fmt.Sprintf("agent %q is busy with subtask %q", id, p.CurrentSubtask)).
			WithAgent(id).WithRetryable(true)
	}
	p.Available = false
	p.CurrentSubtask = subtaskID

	d.logger.Debug("agent assigned",
		zap.String("agent_id", id),
		zap.String("subtask_id", subtaskID),
	)
	return nil
}

// Release frees an agent and folds the assignment outcome into the
// counters that feed future scoring. Releasing an idle agent is a no-op.
func (d *Directory) Release(id string, success bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.agents[id]
	if !ok {
		return types.NewError(types.ErrAgentUnknown,
			fmt.Sprintf("agent %q not registered", id)).WithAgent(id)
	}
	if p.Available {
		return nil
	}
	p.Available = true
	p.CurrentSubtask = ""
	if success {
		p.Completed++
	} else {
		p.Failed++
	}

	d.logger.Debug("agent released",
		zap.String("agent_id", id),
		zap.Bool("success", success),
	)
	return nil
}

// Status returns pool-level counters.
func (d *Directory) Status() PoolStatus {
	d.mu.Lock()
	defer d.mu.Unlock()

	st := PoolStatus{TotalAgents: len(d.agents)}
	for _, p := range d.agents {
		if p.Available {
			st.AvailableAgents++
		} else {
			st.BusyAgents++
		}
		st.TotalCompleted += p.Completed
		st.TotalFailed += p.Failed
	}
	return st
}

// Profiles returns copies of all profiles in registration order.
func (d *Directory) Profiles() []Profile {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Profile, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, *d.agents[id])
	}
	return out
}
