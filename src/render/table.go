package render

import (
	"fmt"
	"io"
	"strconv"

	"OverListing/src/processor"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

var (
	belowColor = color.New(color.FgRed)   // 成交价低于挂牌价
	aboveColor = color.New(color.FgGreen) // 成交价高于挂牌价
)

// WriteTable 终端表格, 列与过滤视图一致; 选择为空时只输出提示
func WriteTable(w io.Writer, view *processor.View) error {
	if _, err := domainOf(view); err != nil {
		_, werr := fmt.Fprintln(w, err.Error())
		return werr
	}

	table := tablewriter.NewWriter(w)
	headers := append([]string{view.Schema.Year, view.Schema.Postcode, view.Schema.Sample}, view.Series...)
	table.Header(headers)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	data := make([][]string, 0, len(view.Rows))
	for _, r := range view.Rows {
		row := []string{r.Year.Format("2006"), r.Postcode, strconv.Itoa(r.Sample)}
		for _, v := range r.Values {
			row = append(row, formatPercent(v))
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

func formatPercent(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	switch {
	case v < 0:
		return belowColor.Sprint(s)
	case v > 0:
		return aboveColor.Sprint(s)
	}
	return s
}
