package safety

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Direction: 单调方向。
type Direction int

const (
	Increasing Direction = iota
	Decreasing
)

func (d Direction) String() string {
	switch d {
	case Increasing:
		return "increasing"
	case Decreasing:
		return "decreasing"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Range: 闭区间 [Min, Max]，描述某方向上合法的相邻差值。
type Range struct {
	Min int64 `json:"min" yaml:"min"`
	Max int64 `json:"max" yaml:"max"`
}

// Contains 判断差值是否落在闭区间内。
func (r Range) Contains(step int64) bool { return step >= r.Min && step <= r.Max }

// Admits 判断 a→b 这一步是否合法（差值 b-a 落在区间内）。
// 输入位宽由分词器限制（≤18 位十进制），差值不会溢出 int64。
func (r Range) Admits(a, b int64) bool { return r.Contains(b - a) }

func (r Range) String() string { return fmt.Sprintf("[%d,%d]", r.Min, r.Max) }

// Policy: 两个方向各自的步长区间。
// 两区间不要求对称；分类器只按区间本身判定。
type Policy struct {
	Increasing Range `json:"increasing" yaml:"increasing"`
	Decreasing Range `json:"decreasing" yaml:"decreasing"`
}

// CanonicalPolicy 返回默认策略：递增 [1,3]，递减 [-3,-1]。
func CanonicalPolicy() Policy {
	return Policy{
		Increasing: Range{Min: 1, Max: 3},
		Decreasing: Range{Min: -3, Max: -1},
	}
}

// UnmarshalJSON 以默认策略为底解码，缺省的方向或端点保留默认值；未知字段报错。
func (p *Policy) UnmarshalJSON(b []byte) error {
	type plain Policy
	v := plain(CanonicalPolicy())
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*p = Policy(v)
	return nil
}

// Range 返回方向对应的区间。
func (p Policy) Range(d Direction) Range {
	if d == Decreasing {
		return p.Decreasing
	}
	return p.Increasing
}

// Valid 判断 a→b 对方向 d 是否为合法步。
func (p Policy) Valid(d Direction, a, b int64) bool { return p.Range(d).Admits(a, b) }

// Mirror 返回反转序列时应使用的策略：两方向互换且取反。
// 对任意报告 r：Classify(r, p) == Classify(reverse(r), p.Mirror())。
func (p Policy) Mirror() Policy {
	return Policy{
		Increasing: Range{Min: -p.Decreasing.Max, Max: -p.Decreasing.Min},
		Decreasing: Range{Min: -p.Increasing.Max, Max: -p.Increasing.Min},
	}
}

// Validate 在配置期拒绝空区间；分类器内部不再检查。
func (p Policy) Validate() error {
	if p.Increasing.Min > p.Increasing.Max {
		return fmt.Errorf("safety: increasing range %s is empty", p.Increasing)
	}
	if p.Decreasing.Min > p.Decreasing.Max {
		return fmt.Errorf("safety: decreasing range %s is empty", p.Decreasing)
	}
	return nil
}

// Budget: 允许丢弃的元素个数（仅 0 或 1）。
type Budget int

const (
	Strict Budget = 0
	Damped Budget = 1
)

// ParseBudget 校验整数预算。
func ParseBudget(n int) (Budget, error) {
	switch n {
	case 0:
		return Strict, nil
	case 1:
		return Damped, nil
	default:
		return 0, fmt.Errorf("safety: removal budget must be 0 or 1, got %d", n)
	}
}
