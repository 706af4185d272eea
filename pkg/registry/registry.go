package registry

import (
	"bytes"
	"encoding/json"

	"rptsafe/pkg/contract"
	"rptsafe/pkg/safety"
	sum "rptsafe/plugins/aggregator/sum"
	chunk "rptsafe/plugins/batcher/chunk"
	auto "rptsafe/plugins/classifier/automaton"
	naive "rptsafe/plugins/classifier/naive"
	rfs "rptsafe/plugins/reader/filesystem"
	dec "rptsafe/plugins/tokenizer/decimal"
	wnone "rptsafe/plugins/writer/discard"
	wfs "rptsafe/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	d := json.NewDecoder(bytes.NewReader(raw))
	d.DisallowUnknownFields()
	return d.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewTokenizer 工厂签名：接收原样 JSON Options。
type NewTokenizer func(raw json.RawMessage) (contract.Tokenizer, error)

// NewBatcher 工厂签名：接收原样 JSON Options。
type NewBatcher func(raw json.RawMessage) (contract.Batcher, error)

// NewClassifier 工厂签名：策略与预算来自顶层配置，raw 为插件自身选项（当前均无）。
type NewClassifier func(p safety.Policy, budget safety.Budget, raw json.RawMessage) (contract.Classifier, error)

// NewAggregator 工厂签名：接收原样 JSON Options。
type NewAggregator func(raw json.RawMessage) (contract.Aggregator, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Tokenizer 工厂注册表。
var Tokenizer = map[string]NewTokenizer{
	// decimal: 每行一份报告，空白分隔的非负十进制整数
	"decimal": func(raw json.RawMessage) (contract.Tokenizer, error) {
		var opts dec.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dec.New(&opts), nil
	},
}

// Batcher 工厂注册表。
var Batcher = map[string]NewBatcher{
	// chunk: 按条数/字节数连续分块
	"chunk": func(raw json.RawMessage) (contract.Batcher, error) {
		var opts chunk.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return chunk.New(&opts), nil
	},
}

// Classifier 工厂注册表。
var Classifier = map[string]NewClassifier{
	// automaton: 单趟常数内存自动机（主路径）
	"automaton": func(p safety.Policy, b safety.Budget, raw json.RawMessage) (contract.Classifier, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return auto.New(p, b)
	},
	// naive: 物化后逐个删除的 O(n²) 参考实现
	"naive": func(p safety.Policy, b safety.Budget, raw json.RawMessage) (contract.Classifier, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return naive.New(p, b)
	},
}

// Aggregator 工厂注册表。
var Aggregator = map[string]NewAggregator{
	"sum": func(raw json.RawMessage) (contract.Aggregator, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return sum.New(), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
	// none: 丢弃全部工件，只输出计数
	"none": func(raw json.RawMessage) (contract.Writer, error) {
		if err := strictUnmarshal(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return wnone.Writer{}, nil
	},
}
