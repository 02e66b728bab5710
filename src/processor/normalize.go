package processor

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"OverListing/src/config"
	"OverListing/src/utils"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

const (
	yearLayout = "2006"
	// DateLayout 归一化后 Year 列在 DataFrame 中的文本格式
	DateLayout = "2006-01-02"
)

var (
	ErrMissingColumn  = errors.New("missing column")
	ErrMalformedValue = errors.New("malformed value")
)

// Round2 保留两位小数, 对放大后的值使用银行家舍入
func Round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

// ParseYear 4 位年份 -> 当年 1 月 1 日 (UTC)
func ParseYear(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) != 4 {
		return time.Time{}, fmt.Errorf("year %q: expected 4 digits", s)
	}
	return time.Parse(yearLayout, s)
}

// Normalize 重命名列, 转换年份, 百分比列保留两位小数
// 行数与顺序保持不变, 未配置的列被丢弃
func Normalize(raw dataframe.DataFrame, dc *config.DataConfig) (*Dataset, error) {
	if raw.Err != nil {
		return nil, raw.Err
	}

	var missing, sources []string
	for _, col := range dc.Columns {
		if !utils.HasColumn(raw, col.Source) {
			missing = append(missing, col.Source)
		}
		sources = append(sources, col.Source)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	df := raw.Select(sources)
	for _, col := range dc.Columns {
		df = df.Rename(col.Display, col.Source)
	}
	if df.Err != nil {
		return nil, fmt.Errorf("重命名列失败: %w", df.Err)
	}

	schema := SchemaOf(dc)
	n := df.Nrow()
	records := make([]Record, n)
	for i := range records {
		records[i].Percentages = make(map[string]float64, len(schema.Percentages))
	}

	// 1. 邮编
	postcodes := df.Col(schema.Postcode).Records()
	for i, p := range postcodes {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, malformed(schema.Postcode, i, p, errors.New("empty postcode"))
		}
		postcodes[i] = p
		records[i].Postcode = p
	}
	df = df.Mutate(series.New(postcodes, series.String, schema.Postcode))

	// 2. 年份
	yearText := df.Col(schema.Year).Records()
	dates := make([]string, n)
	for i, s := range yearText {
		t, err := ParseYear(s)
		if err != nil {
			return nil, malformed(schema.Year, i, s, err)
		}
		records[i].Year = t
		dates[i] = t.Format(DateLayout)
	}
	df = df.Mutate(series.New(dates, series.String, schema.Year))

	// 3. 样本数
	sampleText := df.Col(schema.Sample).Records()
	samples := make([]int, n)
	for i, s := range sampleText {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, malformed(schema.Sample, i, s, err)
		}
		samples[i] = v
		records[i].Sample = v
	}
	df = df.Mutate(series.New(samples, series.Int, schema.Sample))

	// 4. 百分比列
	for _, name := range schema.Percentages {
		text := df.Col(name).Records()
		values := make([]float64, n)
		for i, s := range text {
			v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
				err = errors.New("not a finite number")
			}
			if err != nil {
				return nil, malformed(name, i, s, err)
			}
			values[i] = Round2(v)
			records[i].Percentages[name] = values[i]
		}
		df = df.Mutate(series.New(values, series.Float, name))
	}

	if df.Err != nil {
		return nil, fmt.Errorf("归一化失败: %w", df.Err)
	}

	return &Dataset{df: df, records: records, schema: schema}, nil
}

func malformed(column string, row int, value string, err error) error {
	// row 从 1 开始, 不含表头
	return fmt.Errorf("%w: column %q row %d value %q: %v", ErrMalformedValue, column, row+1, value, err)
}
