package processor

import (
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// ViewRow 过滤投影后的一行
type ViewRow struct {
	Year     time.Time
	Postcode string
	Sample   int
	Values   []float64 // 与 View.Series 一一对应
}

// View 过滤投影结果, 每次选择变化都重新计算
type View struct {
	Frame     dataframe.DataFrame
	Rows      []ViewRow
	Series    []string // 固定绘制的数值序列
	Selection []string
	Schema    Schema
}

// Empty 选择为空时不绘图
func (v *View) Empty() bool { return len(v.Selection) == 0 }

// Values 返回第 i 个序列的所有值
func (v *View) Values(i int) []float64 {
	out := make([]float64, len(v.Rows))
	for j, r := range v.Rows {
		out[j] = r.Values[i]
	}
	return out
}

// Filter 保留 Postcode 在 selection 中的行, 保持原始顺序
// 并投影到 Year, Postcode, Sample 和固定序列
func (d *Dataset) Filter(selection []string) (*View, error) {
	selection = dedupe(selection)
	cols := d.schema.ViewColumns()

	var frame dataframe.DataFrame
	if len(selection) == 0 || d.df.Nrow() == 0 {
		frame = emptyFrame(d.df, cols)
	} else {
		frame = d.df.Filter(
			dataframe.F{Colname: d.schema.Postcode, Comparator: series.In, Comparando: selection},
		).Select(cols)
	}
	if frame.Err != nil {
		return nil, fmt.Errorf("过滤失败: %w", frame.Err)
	}

	rows, err := viewRows(frame, d.schema)
	if err != nil {
		return nil, err
	}

	return &View{
		Frame:     frame,
		Rows:      rows,
		Series:    append([]string(nil), d.schema.Pinned...),
		Selection: selection,
		Schema:    d.schema,
	}, nil
}

func viewRows(frame dataframe.DataFrame, s Schema) ([]ViewRow, error) {
	n := frame.Nrow()
	rows := make([]ViewRow, n)
	if n == 0 {
		return rows, nil
	}

	dates := frame.Col(s.Year).Records()
	postcodes := frame.Col(s.Postcode).Records()
	samples, err := frame.Col(s.Sample).Int()
	if err != nil {
		return nil, fmt.Errorf("读取样本列失败: %w", err)
	}
	values := make([][]float64, len(s.Pinned))
	for i, name := range s.Pinned {
		values[i] = frame.Col(name).Float()
	}

	for i := range rows {
		year, err := time.Parse(DateLayout, dates[i])
		if err != nil {
			return nil, fmt.Errorf("读取年份失败: %w", err)
		}
		rows[i] = ViewRow{
			Year:     year,
			Postcode: postcodes[i],
			Sample:   samples[i],
			Values:   make([]float64, len(s.Pinned)),
		}
		for j := range s.Pinned {
			rows[i].Values[j] = values[j][i]
		}
	}
	return rows, nil
}

// emptyFrame 保留列名和类型的零行 DataFrame
func emptyFrame(df dataframe.DataFrame, cols []string) dataframe.DataFrame {
	list := make([]series.Series, len(cols))
	for i, name := range cols {
		list[i] = series.New([]string{}, df.Col(name).Type(), name)
	}
	return dataframe.New(list...)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Point 长表中的一个值, 用于 parquet 导出
type Point struct {
	Year     int32   `parquet:"year,snappy"`
	Postcode string  `parquet:"postcode,snappy"`
	Sample   int64   `parquet:"sample,snappy"`
	Series   string  `parquet:"series,snappy"`
	Value    float64 `parquet:"value,snappy"`
}

// Points 每行每个序列展开为一个 Point, 保持行顺序
func (v *View) Points() []Point {
	out := make([]Point, 0, len(v.Rows)*len(v.Series))
	for _, r := range v.Rows {
		for i, name := range v.Series {
			out = append(out, Point{
				Year:     int32(r.Year.Year()),
				Postcode: r.Postcode,
				Sample:   int64(r.Sample),
				Series:   name,
				Value:    r.Values[i],
			})
		}
	}
	return out
}
