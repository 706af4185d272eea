// Package safety 实现报告安全判定的核心：单趟、常数内存的单调性分类器。
//
// 预算为 0 时退化为两个布尔量的严格判定；预算为 1 时每个方向各运行一台
// State 自动机，各自最多携带两个候选尾部，两方向独立判定后取或。
package safety

import "iter"

// Verdict: 单份报告的判定结果。
type Verdict struct {
	Safe bool
	// Levels: 读入的元素个数。
	Levels int
	// Increasing/Decreasing: 各方向终态名（严格路径为 ok/unsafe，预算 1 为 Phase 名）。
	Increasing string
	Decreasing string
}

// Classifier: 单份报告的判定器。每份报告新建一个，逐元素 Push，最后读取 Safe。
// 不跨报告复用，不做 I/O，不分配。
type Classifier struct {
	policy Policy
	budget Budget
	n      int
	first  int64

	// 严格路径
	last         int64
	incOK, decOK bool

	// 预算 1 路径
	inc, dec State
}

// New 构造判定器。budget 以外的值按 Damped 处理；调用方应先经 ParseBudget 校验。
func New(p Policy, budget Budget) Classifier {
	if budget != Strict {
		budget = Damped
	}
	return Classifier{policy: p, budget: budget}
}

// Push 读入下一个元素。
func (c *Classifier) Push(x int64) {
	c.n++
	switch c.n {
	case 1:
		c.first, c.last = x, x
		c.incOK, c.decOK = true, true
		return
	case 2:
		if c.budget == Damped {
			c.inc = Start(c.policy.Increasing, c.first, x)
			c.dec = Start(c.policy.Decreasing, c.first, x)
			return
		}
	}
	if c.budget == Strict {
		if c.incOK && !c.policy.Increasing.Admits(c.last, x) {
			c.incOK = false
		}
		if c.decOK && !c.policy.Decreasing.Admits(c.last, x) {
			c.decOK = false
		}
		c.last = x
		return
	}
	c.inc = c.inc.Next(c.policy.Increasing, x)
	c.dec = c.dec.Next(c.policy.Decreasing, x)
}

// Settled 判断结果是否已不可能再改变为安全（两方向都已不可达）。
func (c *Classifier) Settled() bool {
	if c.n < 2 {
		return false
	}
	if c.budget == Strict {
		return !c.incOK && !c.decOK
	}
	return !c.inc.Alive() && !c.dec.Alive()
}

// Safe 返回当前前缀是否安全。少于两个元素时视为安全（空洞为真）。
func (c *Classifier) Safe() bool {
	if c.n < 2 {
		return true
	}
	if c.budget == Strict {
		return c.incOK || c.decOK
	}
	return c.inc.Alive() || c.dec.Alive()
}

// Verdict 汇总当前判定。
func (c *Classifier) Verdict() Verdict {
	v := Verdict{Safe: c.Safe(), Levels: c.n}
	switch {
	case c.n < 2:
		v.Increasing, v.Decreasing = "ok", "ok"
	case c.budget == Strict:
		v.Increasing, v.Decreasing = okOrUnsafe(c.incOK), okOrUnsafe(c.decOK)
	default:
		v.Increasing, v.Decreasing = c.inc.Phase().String(), c.dec.Phase().String()
	}
	return v
}

func okOrUnsafe(ok bool) string {
	if ok {
		return "ok"
	}
	return Unsafe.String()
}

// Evaluate 单趟消费 levels 并返回完整判定。
// 两方向均进入吸收态后仍会排空序列，以保证 Levels 计数准确。
func Evaluate(levels iter.Seq[int64], p Policy, budget Budget) Verdict {
	c := New(p, budget)
	for x := range levels {
		if c.Settled() {
			c.n++
			continue
		}
		c.Push(x)
	}
	return c.Verdict()
}

// Classify 是对外的唯一入口：classify(levels, policy, budget) → bool。
func Classify(levels iter.Seq[int64], p Policy, budget Budget) bool {
	c := New(p, budget)
	for x := range levels {
		c.Push(x)
		if c.Settled() {
			return false
		}
	}
	return c.Safe()
}
