package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// 列角色
const (
	RolePostcode   = "postcode"
	RoleYear       = "year"
	RoleSample     = "sample"
	RolePercentage = "percentage"
)

const (
	DefaultAddr      = ":8080"
	DefaultTitle     = "% Over Listing Price"
	DefaultLogName   = "app.log"
	DefaultLogSize   = "10 * 1024 * 1024"
	DefaultWidth     = 1000
	DefaultHeight    = 600
	DefaultEncoding  = "utf-8"
	DefaultPinned    = "Average % Over Listing Price"
	defaultRotateInt = time.Minute
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrAlreadyLoaded = errors.New("config already loaded from another location")
)

// Config 结构体定义了应用程序的配置结构
type Config struct {
	Server struct {
		Addr string `json:"addr"` // HTTP 监听地址
	} `json:"server"`

	DataFile       string   `json:"data_file"`       // 数据源文件(csv / xlsx)
	SheetName      string   `json:"sheet_name"`      // xlsx 工作表名, 为空取第一个
	Encoding       string   `json:"encoding"`        // csv 字符集
	Title          string   `json:"title"`           // 页面标题
	LogName        string   `json:"log_name"`        // 日志文件
	LogMaxSize     string   `json:"log_max_size"`    // 日志轮转阈值, 例如 "10 * 1024 * 1024"
	RotateInterval Duration `json:"rotate_interval"` // 日志轮转检查间隔
	ReloadInterval Duration `json:"reload_interval"` // 定时重新加载数据, 0 为关闭
	Watch          bool     `json:"watch"`           // 监听数据文件变化

	Chart struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"chart"`
}

// Column 源列到展示列的映射
type Column struct {
	Source  string `json:"source"`
	Display string `json:"display"`
	Role    string `json:"role"`
}

// DataConfig 数据表结构配置
type DataConfig struct {
	Columns []Column `json:"columns"`
	Pinned  []string `json:"pinned"` // 始终绘制的数值序列
}

// loader 只加载一次, 失败的结果同样被缓存
type loader struct {
	once sync.Once
	key  string
	cfg  *Config
	dcfg *DataConfig
	err  error
}

var defaultLoader = &loader{}

// LoadConfig 进程内只读取一次配置; 之后用其他路径调用返回 ErrAlreadyLoaded
func LoadConfig(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	return defaultLoader.load(jsonFolder, jsonFile, dataJsonFile)
}

func (l *loader) load(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	key := filepath.Join(filepath.Clean(jsonFolder), jsonFile) + "|" + dataJsonFile
	l.once.Do(func() {
		l.key = key
		l.cfg, l.dcfg, l.err = loadConfigs(jsonFolder, jsonFile, dataJsonFile)
	})
	if key != l.key {
		return nil, nil, fmt.Errorf("%w: %s", ErrAlreadyLoaded, l.key)
	}
	if l.err != nil {
		return nil, nil, l.err
	}
	return l.cfg, l.dcfg, nil
}

func loadConfigs(jsonFolder, jsonFile, dataJsonFile string) (*Config, *DataConfig, error) {
	configFile := filepath.Join(jsonFolder, jsonFile)
	dataConfigFile := filepath.Join(jsonFolder, dataJsonFile)

	configData, err := readFile(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 数据配置文件可选, 缺省使用内置列表
	var dataConfigData []byte
	if _, statErr := os.Stat(dataConfigFile); statErr == nil {
		dataConfigData, err = readFile(dataConfigFile)
		if err != nil {
			return nil, nil, fmt.Errorf("读取数据配置文件失败: %w", err)
		}
	}

	cfgChan := make(chan *Config, 1)
	dcfgChan := make(chan *DataConfig, 1)
	errChan := make(chan error, 2)

	go parseConfig(configData, cfgChan, errChan)
	go parseDataConfig(dataConfigData, dcfgChan, errChan)

	cfg, dcfg, err := waitForResults(cfgChan, dcfgChan, errChan)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if err := dcfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, dcfg, nil
}

func readFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	return data, nil
}

func parseConfig(data []byte, resultChan chan<- *Config, errChan chan<- error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		errChan <- fmt.Errorf("解析Config失败: %w", err)
		return
	}
	cfg.applyDefaults()
	resultChan <- &cfg
}

func parseDataConfig(data []byte, resultChan chan<- *DataConfig, errChan chan<- error) {
	dcfg := DefaultDataConfig()
	if len(data) == 0 {
		resultChan <- dcfg
		return
	}

	var parsed DataConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		errChan <- fmt.Errorf("解析DataConfig失败: %w", err)
		return
	}
	if len(parsed.Columns) > 0 {
		dcfg.Columns = parsed.Columns
	}
	if len(parsed.Pinned) > 0 {
		dcfg.Pinned = parsed.Pinned
	}
	resultChan <- dcfg
}

func waitForResults(
	cfgChan <-chan *Config,
	dcfgChan <-chan *DataConfig,
	errChan <-chan error,
) (*Config, *DataConfig, error) {
	var (
		cfg  *Config
		dcfg *DataConfig
		errs []error
	)

	for i := 0; i < 2; i++ {
		select {
		case c := <-cfgChan:
			cfg = c
		case d := <-dcfgChan:
			dcfg = d
		case err := <-errChan:
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return nil, nil, combineErrors(errs)
	}

	if cfg == nil || dcfg == nil {
		return nil, nil, fmt.Errorf("部分配置未加载成功")
	}

	return cfg, dcfg, nil
}

func combineErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("配置加载遇到多个错误: %w", errors.Join(errs...))
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.LogName == "" {
		c.LogName = DefaultLogName
	}
	if c.LogMaxSize == "" {
		c.LogMaxSize = DefaultLogSize
	}
	if c.RotateInterval <= 0 {
		c.RotateInterval = Duration(defaultRotateInt)
	}
	if c.Chart.Width <= 0 {
		c.Chart.Width = DefaultWidth
	}
	if c.Chart.Height <= 0 {
		c.Chart.Height = DefaultHeight
	}
}

// Validate 检查必填项
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataFile) == "" {
		return fmt.Errorf("%w: data_file 不能为空", ErrInvalidConfig)
	}
	if _, err := ParseSize(c.LogMaxSize); err != nil {
		return fmt.Errorf("%w: log_max_size: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultDataConfig 返回内置的列映射表
func DefaultDataConfig() *DataConfig {
	return &DataConfig{
		Columns: []Column{
			{Source: "address.outcode", Display: "Postcode", Role: RolePostcode},
			{Source: "year_sale", Display: "Year", Role: RoleYear},
			{Source: "sample_listed_sold", Display: "Sample", Role: RoleSample},
			{Source: "min_listed_sold_percentage", Display: "Minimum % Over Listing Price", Role: RolePercentage},
			{Source: "lower_quartile_listed_sold_percentage", Display: "Lower Quartile % Over Listing Price", Role: RolePercentage},
			{Source: "median_listed_sold_percentage", Display: "Median % Over Listing Price", Role: RolePercentage},
			{Source: "mean_listed_sold_percentage", Display: DefaultPinned, Role: RolePercentage},
			{Source: "upper_quartile_listed_sold_percentage", Display: "Upper Quartile % Over Listing Price", Role: RolePercentage},
			{Source: "max_listed_sold_percentage", Display: "Maximum % Over Listing Price", Role: RolePercentage},
		},
		Pinned: []string{DefaultPinned},
	}
}

// Validate 校验列映射: 角色唯一, 名称不重复, 固定序列非空
func (dc *DataConfig) Validate() error {
	roles := map[string]int{}
	sources := map[string]bool{}
	displays := map[string]string{}

	for _, col := range dc.Columns {
		if col.Source == "" || col.Display == "" {
			return fmt.Errorf("%w: 列映射缺少 source 或 display", ErrInvalidConfig)
		}
		switch col.Role {
		case RolePostcode, RoleYear, RoleSample, RolePercentage:
		default:
			return fmt.Errorf("%w: 列 %s 的角色未知: %q", ErrInvalidConfig, col.Source, col.Role)
		}
		if sources[col.Source] {
			return fmt.Errorf("%w: 源列重复: %s", ErrInvalidConfig, col.Source)
		}
		if _, ok := displays[col.Display]; ok {
			return fmt.Errorf("%w: 展示列重复: %s", ErrInvalidConfig, col.Display)
		}
		sources[col.Source] = true
		displays[col.Display] = col.Role
		roles[col.Role]++
	}

	for _, role := range []string{RolePostcode, RoleYear, RoleSample} {
		if roles[role] != 1 {
			return fmt.Errorf("%w: 角色 %s 需要恰好一列, 实际 %d", ErrInvalidConfig, role, roles[role])
		}
	}

	if len(dc.Pinned) == 0 {
		return fmt.Errorf("%w: pinned 不能为空", ErrInvalidConfig)
	}
	for _, p := range dc.Pinned {
		if displays[p] != RolePercentage {
			return fmt.Errorf("%w: pinned 序列 %q 不是百分比列", ErrInvalidConfig, p)
		}
	}
	return nil
}

// DisplayFor 返回指定角色的第一列展示名
func (dc *DataConfig) DisplayFor(role string) string {
	for _, col := range dc.Columns {
		if col.Role == role {
			return col.Display
		}
	}
	return ""
}

// Percentages 返回所有百分比列的展示名, 按配置顺序
func (dc *DataConfig) Percentages() []string {
	var names []string
	for _, col := range dc.Columns {
		if col.Role == RolePercentage {
			names = append(names, col.Display)
		}
	}
	return names
}

// ParseSize 解析形如 "10 * 1024 * 1024" 的乘法表达式
func ParseSize(expr string) (int64, error) {
	parts := strings.Split(expr, "*")
	var result int64 = 1
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("无法解析 %q: %w", expr, err)
		}
		if n <= 0 {
			return 0, fmt.Errorf("无法解析 %q: 因子必须为正数", expr)
		}
		result *= n
	}
	return result, nil
}

// Duration 是time.Duration的自定义包装类型
// 用于支持JSON序列化和反序列化
type Duration time.Duration

// UnmarshalJSON 实现json.Unmarshaler接口
// 用于从JSON字符串解析Duration
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalJSON 实现json.Marshaler接口
// 用于将Duration序列化为JSON字符串
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration { return time.Duration(d) }
