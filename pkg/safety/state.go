package safety

// Phase: 单方向自动机的状态标签。
type Phase uint8

const (
	// TwoGood(prior, tail)：尚未使用丢弃额度。tail 为最后接受的元素；
	// prior 为其前一个，仅用于让后续元素回溯性地“丢弃 tail”。
	TwoGood Phase = iota
	// TwoBad(a, b)：已确定需要一次丢弃。a/b 为当前尾部的两种候选假设
	// （分别对应丢弃了哪一个早先元素）；a==b 时歧义已收敛。
	TwoBad
	// Unsafe：吸收态，至多一次丢弃也无法使前缀合法。
	Unsafe
)

func (p Phase) String() string {
	switch p {
	case TwoGood:
		return "two_good"
	case TwoBad:
		return "two_bad"
	case Unsafe:
		return "unsafe"
	default:
		return "unknown"
	}
}

// State: 单方向、预算为 1 的在线判定自动机。
// 值类型，零分配；每份报告各自持有。
type State struct {
	phase Phase
	a, b  int64
}

// Start 由报告前两个元素初始化方向 r 的自动机。
func Start(r Range, first, second int64) State {
	if r.Admits(first, second) {
		return State{phase: TwoGood, a: first, b: second}
	}
	// 首步即需要丢弃：被丢弃的是 first 还是 second 尚未确定
	return State{phase: TwoBad, a: first, b: second}
}

// Phase 返回当前状态标签。
func (s State) Phase() Phase { return s.phase }

// Tails 返回状态携带的两个槽位：TwoGood 为 (prior, tail)，TwoBad 为两个候选尾部。
func (s State) Tails() (int64, int64) { return s.a, s.b }

// Alive 判断该方向是否仍可能安全。
func (s State) Alive() bool { return s.phase != Unsafe }

// Next 计算读入 x 后的下一状态（全函数，无错误分支）。
func (s State) Next(r Range, x int64) State {
	switch s.phase {
	case TwoGood:
		prior, tail := s.a, s.b
		if r.Admits(tail, x) {
			return State{phase: TwoGood, a: tail, b: x}
		}
		if r.Admits(prior, x) {
			// 额度已用：要么丢 tail（尾部变为 x），要么丢 x（尾部仍是 tail）
			return State{phase: TwoBad, a: tail, b: x}
		}
		// 只能丢 x
		return State{phase: TwoBad, a: tail, b: tail}
	case TwoBad:
		if r.Admits(s.a, x) || r.Admits(s.b, x) {
			return State{phase: TwoBad, a: x, b: x}
		}
		return State{phase: Unsafe}
	default:
		return s
	}
}
