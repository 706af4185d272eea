package safety

// strictSlice 对已物化的序列做严格判定。
func strictSlice(xs []int64, skip int, p Policy) bool {
	inc, dec := true, true
	have := false
	var last int64
	for i, x := range xs {
		if i == skip {
			continue
		}
		if have {
			if !p.Increasing.Admits(last, x) {
				inc = false
			}
			if !p.Decreasing.Admits(last, x) {
				dec = false
			}
			if !inc && !dec {
				return false
			}
		}
		last, have = x, true
	}
	return inc || dec
}

// BruteForce 为参考实现：先严格判定，失败且预算为 1 时逐个尝试删除每个元素。
// 需要物化整份报告，O(n²)；仅用于校验与对照，不是主路径。
func BruteForce(xs []int64, p Policy, budget Budget) bool {
	if strictSlice(xs, -1, p) {
		return true
	}
	if budget == Strict {
		return false
	}
	for i := range xs {
		if strictSlice(xs, i, p) {
			return true
		}
	}
	return false
}
