package render

import (
	"OverListing/src/processor"
)

const (
	VegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"
	pointSize      = 50
	// YearLayout 不带时区的本地时间; 纯日期会被浏览器当作 UTC 解析, 西半球会显示成前一年
	YearLayout = "2006-01-02T15:04:05"
)

// Spec Vega-Lite 顶层结构, 按固定序列分行重复
type Spec struct {
	Schema string `json:"$schema"`
	Data   Data   `json:"data"`
	Repeat Repeat `json:"repeat"`
	Spec   Unit   `json:"spec"`
}

type Data struct {
	Values []map[string]interface{} `json:"values"`
}

type Repeat struct {
	Row []string `json:"row"`
}

// Unit 每一行的分层图: 折线 + 圆点
type Unit struct {
	Width    int      `json:"width"`
	Height   int      `json:"height"`
	Encoding Encoding `json:"encoding"`
	Layer    []Layer  `json:"layer"`
}

type Encoding struct {
	X       Channel   `json:"x"`
	Y       Channel   `json:"y"`
	Color   Channel   `json:"color"`
	Tooltip []Channel `json:"tooltip"`
}

// Channel 编码通道; Field 为列名或 RepeatRef
type Channel struct {
	Field    interface{} `json:"field"`
	Type     string      `json:"type"`
	TimeUnit string      `json:"timeUnit,omitempty"`
	Title    string      `json:"title,omitempty"`
	Scale    *Scale      `json:"scale,omitempty"`
}

type RepeatRef struct {
	Repeat string `json:"repeat"`
}

type Scale struct {
	Domain [2]float64 `json:"domain"`
}

type Layer struct {
	Mark   Mark    `json:"mark"`
	Params []Param `json:"params,omitempty"`
}

type Mark struct {
	Type string `json:"type"`
	Size int    `json:"size,omitempty"`
}

// Param 绑定到坐标轴比例尺的区间选择, 提供平移和缩放
type Param struct {
	Name   string    `json:"name"`
	Select Selection `json:"select"`
	Bind   string    `json:"bind"`
}

type Selection struct {
	Type      string   `json:"type"`
	Encodings []string `json:"encodings"`
}

// BuildSpec 视图 -> Vega-Lite 规格
func BuildSpec(view *processor.View, d Domain, opts Options) *Spec {
	s := view.Schema

	values := make([]map[string]interface{}, len(view.Rows))
	for i, r := range view.Rows {
		row := map[string]interface{}{
			s.Year:     r.Year.Format(YearLayout),
			s.Postcode: r.Postcode,
			s.Sample:   r.Sample,
		}
		for j, name := range view.Series {
			row[name] = r.Values[j]
		}
		values[i] = row
	}

	tooltip := []Channel{
		{Field: s.Postcode, Type: "nominal"},
		{Field: s.Year, Type: "ordinal", TimeUnit: "year", Title: s.Year},
		{Field: s.Sample, Type: "quantitative"},
	}
	for _, name := range view.Series {
		tooltip = append(tooltip, Channel{Field: name, Type: "quantitative"})
	}

	return &Spec{
		Schema: VegaLiteSchema,
		Data:   Data{Values: values},
		Repeat: Repeat{Row: append([]string(nil), view.Series...)},
		Spec: Unit{
			Width:  opts.Width,
			Height: opts.Height,
			Encoding: Encoding{
				X:       Channel{Field: s.Year, Type: "temporal"},
				Y:       Channel{Field: RepeatRef{Repeat: "row"}, Type: "quantitative", Scale: &Scale{Domain: [2]float64{d.Min, d.Max}}},
				Color:   Channel{Field: s.Postcode, Type: "nominal"},
				Tooltip: tooltip,
			},
			Layer: []Layer{
				{
					Mark: Mark{Type: "line"},
					Params: []Param{{
						Name:   "grid",
						Select: Selection{Type: "interval", Encodings: []string{"x", "y"}},
						Bind:   "scales",
					}},
				},
				{Mark: Mark{Type: "circle", Size: pointSize}},
			},
		},
	}
}
