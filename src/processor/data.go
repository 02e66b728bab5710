// data.go
package processor

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"OverListing/src/config"
	"OverListing/src/datasource/file"

	"github.com/go-gota/gota/dataframe"
)

// Record 数据表中的一行, 以 (Postcode, Year) 隐式标识
type Record struct {
	Postcode    string
	Year        time.Time
	Sample      int
	Percentages map[string]float64 // 展示列名 -> 已保留两位小数的值
}

// Schema 归一化后的展示列名
type Schema struct {
	Postcode    string
	Year        string
	Sample      string
	Percentages []string
	Pinned      []string
}

// SchemaOf 从列映射配置得到展示列名
func SchemaOf(dc *config.DataConfig) Schema {
	return Schema{
		Postcode:    dc.DisplayFor(config.RolePostcode),
		Year:        dc.DisplayFor(config.RoleYear),
		Sample:      dc.DisplayFor(config.RoleSample),
		Percentages: dc.Percentages(),
		Pinned:      append([]string(nil), dc.Pinned...),
	}
}

// ViewColumns 过滤后保留的列: Year, Postcode, Sample 加固定序列
func (s Schema) ViewColumns() []string {
	return append([]string{s.Year, s.Postcode, s.Sample}, s.Pinned...)
}

// Dataset 只读的归一化数据集
type Dataset struct {
	df      dataframe.DataFrame
	records []Record
	schema  Schema
}

// Frame 返回归一化后的 DataFrame, Year 列为 2006-01-02 文本
func (d *Dataset) Frame() dataframe.DataFrame { return d.df }

// Records 返回所有行, 顺序与源文件一致
func (d *Dataset) Records() []Record { return d.records }

func (d *Dataset) Schema() Schema { return d.schema }

func (d *Dataset) Len() int { return len(d.records) }

// SortedPostcodes 去重后升序的邮编, 作为默认选择
func (d *Dataset) SortedPostcodes() []string {
	seen := make(map[string]bool, len(d.records))
	postcodes := make([]string, 0)
	for _, r := range d.records {
		if !seen[r.Postcode] {
			seen[r.Postcode] = true
			postcodes = append(postcodes, r.Postcode)
		}
	}
	sort.Strings(postcodes)
	return postcodes
}

// Summary 用于日志的简短描述
func (d *Dataset) Summary() string {
	if len(d.records) == 0 {
		return "0 rows"
	}
	first, last := d.records[0].Year, d.records[0].Year
	for _, r := range d.records[1:] {
		if r.Year.Before(first) {
			first = r.Year
		}
		if r.Year.After(last) {
			last = r.Year
		}
	}
	return fmt.Sprintf("%d rows, %d postcodes, %d-%d",
		len(d.records), len(d.SortedPostcodes()), first.Year(), last.Year())
}

// Load 读取并归一化数据文件
func Load(path string, opts file.Options, dc *config.DataConfig) (*Dataset, error) {
	raw, err := file.ReadTable(path, opts)
	if err != nil {
		return nil, err
	}
	ds, err := Normalize(raw, dc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// Store 封装当前数据集并提供线程安全访问
// 加载失败时丢弃旧数据, 只保留错误
type Store struct {
	mu       sync.RWMutex
	ds       *Dataset
	err      error
	loadedAt time.Time
	load     func() (*Dataset, error)
	now      func() time.Time
}

func NewStore(load func() (*Dataset, error)) *Store {
	return &Store{
		load: load,
		now:  time.Now,
		err:  fmt.Errorf("dataset not loaded"),
	}
}

// Reload 重新加载数据
func (s *Store) Reload() error {
	ds, err := s.load()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadedAt = s.now()
	if err != nil {
		s.ds, s.err = nil, err
		return err
	}
	s.ds, s.err = ds, nil
	return nil
}

// Get 获取当前数据集(线程安全)
func (s *Store) Get() (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds, s.err
}

// LoadedAt 最近一次加载(无论成功与否)的时间
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
