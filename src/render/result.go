package render

import (
	"errors"

	"OverListing/src/config"
	"OverListing/src/processor"
)

const (
	NoSelectionMessage = "Please select at least one postcode to plot."
	NoDataMessage      = "No data for the selected postcodes."
)

var (
	ErrNoSelection = errors.New(NoSelectionMessage)
	ErrNoData      = errors.New(NoDataMessage)
)

// Options 图表尺寸和标题
type Options struct {
	Title  string
	Width  int
	Height int
}

// OptionsFrom 从配置读取图表参数
func OptionsFrom(cfg *config.Config) Options {
	return Options{Title: cfg.Title, Width: cfg.Chart.Width, Height: cfg.Chart.Height}
}

// DefaultOptions 1000x600
func DefaultOptions() Options {
	return Options{Title: config.DefaultTitle, Width: config.DefaultWidth, Height: config.DefaultHeight}
}

// Result 要么是图表, 要么是提示文本
type Result struct {
	Message string
	Domain  Domain
	Spec    *Spec
}

func (r Result) HasChart() bool { return r.Spec != nil }

// Build 选择为空时只返回提示, 不生成图表
func Build(view *processor.View, opts Options) Result {
	d, err := domainOf(view)
	if err != nil {
		return Result{Message: err.Error()}
	}
	return Result{Domain: d, Spec: BuildSpec(view, d, opts)}
}

func domainOf(view *processor.View) (Domain, error) {
	if view.Empty() {
		return Domain{}, ErrNoSelection
	}
	series := make([][]float64, len(view.Series))
	for i := range view.Series {
		series[i] = view.Values(i)
	}
	d, ok := AxisDomain(series...)
	if !ok {
		return Domain{}, ErrNoData
	}
	return d, nil
}
