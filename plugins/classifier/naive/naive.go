// Package naive 提供 O(n²) 的逐个删除参考分类器。
// 会物化整份报告，只用于对照核心自动机，不建议在大输入上使用。
package naive

import (
	"iter"
	"slices"

	"rptsafe/pkg/contract"
	"rptsafe/pkg/safety"
)

// closed 不接受任何步长，用于单独评估某一方向。
var closed = safety.Range{Min: 1, Max: 0}

// Classifier 为逐个删除的参考分类器，语义与 automaton 一致。
type Classifier struct {
	policy safety.Policy
	budget safety.Budget
}

// New 校验策略后创建参考分类器。
func New(p safety.Policy, budget safety.Budget) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := safety.ParseBudget(int(budget)); err != nil {
		return nil, err
	}
	return &Classifier{policy: p, budget: budget}, nil
}

var _ contract.Classifier = (*Classifier)(nil)

// Classify 物化 levels 后按方向分别穷举。方向字段为 ok/unsafe。
func (c *Classifier) Classify(levels iter.Seq[int64]) safety.Verdict {
	xs := slices.Collect(levels)
	inc := safety.BruteForce(xs, safety.Policy{Increasing: c.policy.Increasing, Decreasing: closed}, c.budget)
	dec := safety.BruteForce(xs, safety.Policy{Increasing: closed, Decreasing: c.policy.Decreasing}, c.budget)
	if len(xs) < 2 {
		inc, dec = true, true
	}
	return safety.Verdict{
		Safe:       inc || dec,
		Levels:     len(xs),
		Increasing: state(inc),
		Decreasing: state(dec),
	}
}

func state(ok bool) string {
	if ok {
		return "ok"
	}
	return safety.Unsafe.String()
}
