package workflow

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/overseer/types"
)

func TestSynthesizeEmptyGraph(t *testing.T) {
	s := NewSynthesizer(0)
	out, err := s.Synthesize("目标", NewTaskGraph())
	require.NoError(t, err)
	assert.Contains(t, out, "目标")
	assert.Contains(t, out, "No subtasks")
}

func TestSynthesizeCompletedOnly(t *testing.T) {
	g := buildGraph(t,
		newSubtask("a"),
		newSubtask("b"),
		newSubtask("c"),
	)
	require.NoError(t, g.MarkInProgress("a", "agent"))
	require.NoError(t, g.MarkComplete("a", "alpha result"))
	require.NoError(t, g.MarkInProgress("b", "agent"))
	require.NoError(t, g.MarkFailed("b", "exploded"))
	require.NoError(t, g.MarkInProgress("c", "agent"))
	require.NoError(t, g.MarkComplete("c", "gamma result"))

	out, err := NewSynthesizer(0).Synthesize("objective", g)
	require.NoError(t, err)

	// 正文只包含已完成子任务的结果
	assert.Contains(t, out, "alpha result")
	assert.Contains(t, out, "gamma result")
	assert.NotContains(t, strings.SplitN(out, "## Unresolved", 2)[0], "exploded")

	// 失败的子任务列在 Unresolved 清单中
	assert.Contains(t, out, "## Unresolved")
	assert.Contains(t, out, "exploded")
}

func TestSynthesizeReportsBlocked(t *testing.T) {
	g := buildGraph(t,
		newSubtask("root"),
		newSubtask("leaf", "root"),
	)
	require.NoError(t, g.MarkInProgress("root", "agent"))
	require.NoError(t, g.MarkFailed("root", "no luck"))

	out, err := NewSynthesizer(0).Synthesize("objective", g)
	require.NoError(t, err)
	assert.Contains(t, out, "## Blocked")
	assert.Contains(t, out, "waiting on root")
}

func TestSynthesizeHonorsTokenBudget(t *testing.T) {
	g := buildGraph(t,
		newSubtask("big"),
		newSubtask("late"),
	)
	require.NoError(t, g.MarkInProgress("big", "agent"))
	require.NoError(t, g.MarkComplete("big", strings.Repeat("lorem ipsum ", 500)))
	require.NoError(t, g.MarkInProgress("late", "agent"))
	require.NoError(t, g.MarkComplete("late", "the late unique marker"))

	out, err := NewSynthesizer(20).Synthesize("objective", g)
	require.NoError(t, err)

	// 预算在第一段即耗尽, 后续结果不再进入正文
	assert.NotContains(t, out, "the late unique marker")
	assert.Contains(t, out, "Subtasks: 2 completed")
	assert.Less(t, len(out), 1000)
}

// 编码数据不可用时的回退裁剪:按 len/4 的字节口径封顶, 且不得把
// 多字节字符切成半个。
func TestTruncateFallbackHonorsByteEstimate(t *testing.T) {
	s := NewSynthesizer(10)
	s.once.Do(func() { s.initErr = errors.New("encoding unavailable") })

	text := strings.Repeat("汉字文本填充", 100)
	out := s.truncate(text, 10)

	assert.LessOrEqual(t, len(out), 10*4+len(" …"))
	assert.True(t, utf8.ValidString(out))

	// ASCII 文本同口径
	out = s.truncate(strings.Repeat("a", 100), 10)
	assert.Equal(t, strings.Repeat("a", 40)+" …", out)
}

func TestSummaryCountsBlockedAsBlocked(t *testing.T) {
	g := buildGraph(t,
		newSubtask("root"),
		newSubtask("leaf", "root"),
	)
	require.NoError(t, g.MarkInProgress("root", "agent"))
	require.NoError(t, g.MarkFailed("root", "no luck"))

	summary := g.Summary()
	assert.Equal(t, 1, summary[types.StatusFailed])
	assert.Equal(t, 1, summary[types.StatusBlocked])
	assert.Equal(t, 0, summary[types.StatusPending])
}
