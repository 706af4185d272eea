// Package automaton 将 safety 包的单趟自动机包装为 contract.Classifier。
package automaton

import (
	"iter"

	"rptsafe/pkg/contract"
	"rptsafe/pkg/safety"
)

// Classifier 按绑定的策略与预算逐份判定，常数内存。
type Classifier struct {
	policy safety.Policy
	budget safety.Budget
}

// New 校验策略后创建分类器。
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

// Classify 单趟消费 levels；终态名写入方向字段。
func (c *Classifier) Classify(levels iter.Seq[int64]) safety.Verdict {
	return safety.Evaluate(levels, c.policy, c.budget)
}
