package directory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/overseer/types"
)

func newPool(t *testing.T, profiles ...Profile) *Directory {
	t.Helper()
	d := New(zap.NewNop())
	for _, p := range profiles {
		require.NoError(t, d.Register(p))
	}
	return d
}

func TestRegisterRejectsDuplicateAndEmptyID(t *testing.T) {
	d := newPool(t, Profile{ID: "a"})
	require.Error(t, d.Register(Profile{ID: "a"}))
	require.Error(t, d.Register(Profile{}))
}

func TestScoringPrefersCapabilityOverlap(t *testing.T) {
	d := newPool(t,
		Profile{ID: "generalist", Capabilities: []string{"writing"}},
		Profile{ID: "specialist", Capabilities: []string{"coding", "testing"}},
	)

	best, err := d.FindBest([]string{"coding", "testing"}, "")
	require.NoError(t, err)
	assert.Equal(t, "specialist", best.ID)

	best, err = d.FindBest([]string{"writing"}, "")
	require.NoError(t, err)
	assert.Equal(t, "generalist", best.ID)
}

func TestScoringPhaseAffinityBreaksCapabilityTies(t *testing.T) {
	d := newPool(t,
		Profile{ID: "a", Capabilities: []string{"coding"}},
		Profile{ID: "b", Capabilities: []string{"coding"}, PhaseAffinity: []types.Phase{types.PhaseExecution}},
	)

	best, err := d.FindBest([]string{"coding"}, types.PhaseExecution)
	require.NoError(t, err)
	assert.Equal(t, "b", best.ID)
}

func TestEqualScoresKeepRegistrationOrder(t *testing.T) {
	d := newPool(t,
		Profile{ID: "first", Capabilities: []string{"coding"}},
		Profile{ID: "second", Capabilities: []string{"coding"}},
	)

	// 相同状态与输入必须得到相同的结果
	for i := 0; i < 10; i++ {
		best, err := d.FindBest([]string{"coding"}, "")
		require.NoError(t, err)
		assert.Equal(t, "first", best.ID)
	}
}

func TestSuccessHistoryShiftsRanking(t *testing.T) {
	d := newPool(t,
		Profile{ID: "flaky", Capabilities: []string{"coding"}},
		Profile{ID: "solid", Capabilities: []string{"coding"}},
	)

	// flaky 积累失败记录后排名落后
	require.NoError(t, d.Assign("flaky", "s1"))
	require.NoError(t, d.Release("flaky", false))
	require.NoError(t, d.Assign("solid", "s2"))
	require.NoError(t, d.Release("solid", true))

	best, err := d.FindBest([]string{"coding"}, "")
	require.NoError(t, err)
	assert.Equal(t, "solid", best.ID)
}

func TestFindBestFallsBackToFirstAvailable(t *testing.T) {
	d := newPool(t,
		Profile{ID: "busy", Capabilities: []string{"irrelevant"}},
		Profile{ID: "idle", Capabilities: []string{"irrelevant"}},
	)
	require.NoError(t, d.Assign("busy", "s1"))

	best, err := d.FindBest(nil, "")
	require.NoError(t, err)
	assert.Equal(t, "idle", best.ID)
}

func TestFindBestErrorsWhenPoolExhausted(t *testing.T) {
	d := newPool(t, Profile{ID: "only"})
	require.NoError(t, d.Assign("only", "s1"))

	_, err := d.FindBest(nil, "")
	require.Error(t, err)
	assert.Equal(t, types.ErrNoAgentsAvailable, types.GetErrorCode(err))
}

func TestCandidatesExcludeBusyAgents(t *testing.T) {
	d := newPool(t,
		Profile{ID: "a", Capabilities: []string{"coding"}},
		Profile{ID: "b", Capabilities: []string{"coding"}},
	)
	require.NoError(t, d.Assign("a", "s1"))

	ranked := d.Candidates([]string{"coding"}, "")
	require.Len(t, ranked, 1)
	assert.Equal(t, "b", ranked[0].Profile.ID)
	assert.Greater(t, ranked[0].Score, 0.0)
}

func TestAssignClaimIsExclusive(t *testing.T) {
	d := newPool(t, Profile{ID: "a"})
	require.NoError(t, d.Assign("a", "s1"))

	err := d.Assign("a", "s2")
	require.Error(t, err)
	assert.Equal(t, types.ErrAgentUnavailable, types.GetErrorCode(err))

	p, err := d.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "s1", p.CurrentSubtask)
}

// 并发抢占同一 agent 时只有一个成功
func TestConcurrentAssignExactlyOneWinner(t *testing.T) {
	d := newPool(t, Profile{ID: "a"})

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan int, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Assign("a", "s"); err == nil {
				wins <- 1
			}
		}()
	}
	wg.Wait()
	close(wins)

	total := 0
	for range wins {
		total++
	}
	assert.Equal(t, 1, total)
}

func TestReleaseUpdatesCountersAndAvailability(t *testing.T) {
	d := newPool(t, Profile{ID: "a"})

	require.NoError(t, d.Assign("a", "s1"))
	require.NoError(t, d.Release("a", true))
	require.NoError(t, d.Assign("a", "s2"))
	require.NoError(t, d.Release("a", false))

	p, err := d.Get("a")
	require.NoError(t, err)
	assert.True(t, p.Available)
	assert.Empty(t, p.CurrentSubtask)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, 1, p.Failed)
	assert.InDelta(t, 0.5, p.SuccessRate(), 1e-9)

	// 释放空闲 agent 是 no-op
	require.NoError(t, d.Release("a", true))
	p, _ = d.Get("a")
	assert.Equal(t, 1, p.Completed)
}

func TestPoolStatus(t *testing.T) {
	d := newPool(t, Profile{ID: "a"}, Profile{ID: "b"})
	require.NoError(t, d.Assign("a", "s1"))

	st := d.Status()
	assert.Equal(t, 2, st.TotalAgents)
	assert.Equal(t, 1, st.AvailableAgents)
	assert.Equal(t, 1, st.BusyAgents)
}
