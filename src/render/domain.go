// Package render 把过滤后的视图转换为图表: Vega-Lite 交互图, PNG 静态图和 HTML 页面
package render

// Padding y 轴上下界的放大系数
const Padding = 1.1

// Domain y 轴范围
type Domain struct {
	Min float64
	Max float64
}

// Degenerate 上下界相等, 例如全部为 0
func (d Domain) Degenerate() bool { return d.Min >= d.Max }

// AxisDomain 计算 max(V)*1.1 与 min(V)*1.1
// 直接相乘: 负的最小值会变得更小, 正的最大值变得更大
// 没有数据时 ok 为 false
func AxisDomain(values ...[]float64) (d Domain, ok bool) {
	first := true
	var lo, hi float64
	for _, vs := range values {
		for _, v := range vs {
			if first {
				lo, hi = v, v
				first = false
				continue
			}
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if first {
		return Domain{}, false
	}
	return Domain{Min: lo * Padding, Max: hi * Padding}, true
}
