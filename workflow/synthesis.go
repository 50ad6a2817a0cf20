package workflow

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/BaSui01/overseer/types"
)

// defaultSynthesisBudget caps how many tokens of subtask results flow
// into the final report. cl100k_base matches the models workers
// typically run on.
const (
	defaultSynthesisBudget = 8192
	synthesisEncoding      = "cl100k_base"
)

// Synthesizer 将已完成子任务的结果折叠成最终报告。
//
// 只有已完成的子任务贡献正文;失败和受阻的子任务以清单形式附
// 在末尾, 使读者知道目标的哪些部分缺失。结果正文受 token 预算
// 约束, 超出预算的结果按依赖拓扑顺序截断。
type Synthesizer struct {
	budget  int
	enc     *tiktoken.Tiktoken
	once    sync.Once
	initErr error
}

// NewSynthesizer builds a synthesizer with the given token budget;
// budget <= 0 uses the default.
func NewSynthesizer(budget int) *Synthesizer {
	if budget <= 0 {
		budget = defaultSynthesisBudget
	}
	return &Synthesizer{budget: budget}
}

// init lazily 初始化 tiktoken 编码(首次使用时可能下载数据)。
func (s *Synthesizer) init() error {
	s.once.Do(func() {
		enc, err := tiktoken.GetEncoding(synthesisEncoding)
		if err != nil {
			s.initErr = fmt.Errorf("init tiktoken encoding %s: %w", synthesisEncoding, err)
			return
		}
		s.enc = enc
	})
	return s.initErr
}

// countTokens falls back to a bytes/4 estimate when the encoding data is
// unavailable (air-gapped deployments cannot fetch it).
func (s *Synthesizer) countTokens(text string) int {
	if err := s.init(); err != nil {
		return len(text) / 4
	}
	return len(s.enc.Encode(text, nil, nil))
}

// truncate cuts text down to at most budget tokens. With the encoding
// loaded the cut lands on a token boundary; the fallback cuts on a rune
// boundary near the estimated position.
func (s *Synthesizer) truncate(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if err := s.init(); err != nil {
		// Same bytes-per-token estimate as countTokens, backed off to the
		// nearest rune boundary so the cut never splits a code point.
		limit := budget * 4
		if len(text) <= limit {
			return text
		}
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		return text[:cut] + " …"
	}
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return s.enc.Decode(tokens[:budget]) + " …"
}

// Synthesize renders the run's final output from the graph.
func (s *Synthesizer) Synthesize(objective string, graph *TaskGraph) (string, error) {
	if graph == nil || graph.Len() == 0 {
		return fmt.Sprintf("Objective: %s\n\nNo subtasks were produced; nothing to report.", objective), nil
	}

	completed := graph.Completed()
	failed := graph.Failed()
	blocked := graph.Blocked()

	var b strings.Builder
	fmt.Fprintf(&b, "Objective: %s\n", objective)
	summary := graph.Summary()
	fmt.Fprintf(&b, "Subtasks: %d completed, %d failed, %d blocked\n\n",
		len(completed), summary[types.StatusFailed], len(blocked))

	remaining := s.budget
	for _, st := range completed {
		section := fmt.Sprintf("## %s\n%s\n\n", st.Description, st.Result)
		n := s.countTokens(section)
		if n > remaining {
			b.WriteString(s.truncate(section, remaining))
			b.WriteString("\n\n")
			remaining = 0
			break
		}
		b.WriteString(section)
		remaining -= n
	}

	if len(failed) > 0 {
		b.WriteString("## Unresolved\n")
		for _, st := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", st.Description, st.FailureReason)
		}
		b.WriteString("\n")
	}
	if len(blocked) > 0 {
		b.WriteString("## Blocked\n")
		for _, st := range blocked {
			fmt.Fprintf(&b, "- %s (waiting on %s)\n", st.Description, strings.Join(st.DependsOn, ", "))
		}
	}

	return strings.TrimRight(b.String(), "\n"), nil
}
