package render

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"OverListing/src/processor"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// 单一年份时 x 轴左右各留半年
const yearPad = 183 * 24 * time.Hour

// lineStyle 折线加圆点
func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotColor:    col,
		DotWidth:    4,
	}
}

// 超出默认调色板后按黄金角取色相, 明暗交替
const goldenAngle = 137.508

// seriesColor 前几个序列用 go-chart 默认颜色, 之后生成不重复的颜色
func seriesColor(i int) drawing.Color {
	if i < len(chart.DefaultColors) {
		return chart.DefaultColors[i]
	}
	n := i - len(chart.DefaultColors)
	hue := math.Mod(float64(n)*goldenAngle+15, 360)
	light := 0.45
	if n%2 == 1 {
		light = 0.6
	}
	return hslColor(hue, 0.65, light)
}

func hslColor(h, s, l float64) drawing.Color {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return drawing.Color{
		R: drawing.ColorChannelFromFloat(r + m),
		G: drawing.ColorChannelFromFloat(g + m),
		B: drawing.ColorChannelFromFloat(b + m),
		A: 255,
	}
}

// RenderPNG 静态图, 每个邮编一条折线
func RenderPNG(w io.Writer, view *processor.View, opts Options) error {
	d, err := domainOf(view)
	if err != nil {
		return err
	}

	ch := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis:  xAxisFor(view),
		YAxis:  chart.YAxis{Name: yAxisName(view), Range: yRange(d)},
		Series: timeSeries(view),
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render png: %w", err)
	}
	return nil
}

func yAxisName(view *processor.View) string {
	if len(view.Series) == 1 {
		return view.Series[0]
	}
	return ""
}

// yRange 上下界相等时上下各扩 1, 只影响绘制
func yRange(d Domain) *chart.ContinuousRange {
	lo, hi := d.Min, d.Max
	if d.Degenerate() {
		lo, hi = lo-1, hi+1
	}
	return &chart.ContinuousRange{Min: lo, Max: hi}
}

func xAxisFor(view *processor.View) chart.XAxis {
	seen := map[int]bool{}
	var years []time.Time
	for _, r := range view.Rows {
		if !seen[r.Year.Year()] {
			seen[r.Year.Year()] = true
			years = append(years, r.Year)
		}
	}
	sort.Slice(years, func(i, j int) bool { return years[i].Before(years[j]) })

	ticks := make([]chart.Tick, len(years))
	for i, y := range years {
		ticks[i] = chart.Tick{Value: chart.TimeToFloat64(y), Label: y.Format("2006")}
	}

	return chart.XAxis{
		Name:  view.Schema.Year,
		Ticks: ticks,
		Range: &chart.ContinuousRange{
			Min: chart.TimeToFloat64(years[0].Add(-yearPad)),
			Max: chart.TimeToFloat64(years[len(years)-1].Add(yearPad)),
		},
	}
}

// timeSeries 按邮编分组, 颜色按邮编升序分配, 组内按年份排序
func timeSeries(view *processor.View) []chart.Series {
	groups := map[string][]processor.ViewRow{}
	var postcodes []string
	for _, r := range view.Rows {
		if _, ok := groups[r.Postcode]; !ok {
			postcodes = append(postcodes, r.Postcode)
		}
		groups[r.Postcode] = append(groups[r.Postcode], r)
	}
	sort.Strings(postcodes)

	var out []chart.Series
	for si, name := range view.Series {
		for pi, p := range postcodes {
			rows := groups[p]
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].Year.Before(rows[j].Year) })

			xs := make([]time.Time, len(rows))
			ys := make([]float64, len(rows))
			for i, r := range rows {
				xs[i] = r.Year
				ys[i] = r.Values[si]
			}

			label := p
			if len(view.Series) > 1 {
				label = p + " " + name
			}
			out = append(out, chart.TimeSeries{
				Name:    label,
				XValues: xs,
				YValues: ys,
				Style:   lineStyle(seriesColor(si*len(postcodes) + pi)),
			})
		}
	}
	return out
}
