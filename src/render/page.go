package render

import (
	"html/template"
	"io"
)

// PostcodeOption 侧边栏多选项
type PostcodeOption struct {
	Value    string
	Selected bool
}

// PageData 页面所需的全部数据
type PageData struct {
	Title     string
	Postcodes []PostcodeOption
	Result    Result
	Summary   string
	Error     string       // 数据加载失败时的错误, 不显示图表
	Query     template.URL // 当前选择的查询串, 用于 PNG 和导出链接
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; font-family: sans-serif; display: flex; min-height: 100vh; }
aside { width: 260px; padding: 16px; background: #f0f2f6; box-sizing: border-box; }
aside select { width: 100%; min-height: 320px; }
main { flex: 1; padding: 16px 32px; overflow-x: auto; }
.message { color: #31333f; background: #e8f0fe; padding: 12px; border-radius: 4px; }
.error { color: #7d1a1a; background: #fde8e8; padding: 12px; border-radius: 4px; white-space: pre-wrap; }
footer { color: #808495; font-size: 12px; margin-top: 16px; }
</style>
</head>
<body>
<aside>
<h2>Filter Options</h2>
<form method="get" action="/">
<input type="hidden" name="submitted" value="1">
<label for="postcode">Select Postcodes</label>
<select id="postcode" name="postcode" multiple>
{{- range .Postcodes}}
<option value="{{.Value}}"{{if .Selected}} selected{{end}}>{{.Value}}</option>
{{- end}}
</select>
<p><button type="submit">Apply</button> <a href="/">Reset</a></p>
</form>
</aside>
<main>
<h1>{{.Title}}</h1>
{{- if .Error}}
<div class="error">{{.Error}}</div>
{{- else if .Result.HasChart}}
<div id="chart"></div>
<script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
<script>
vegaEmbed("#chart", {{.Result.Spec}}, {actions: false});
</script>
<footer>
<a href="/chart.png?{{.Query}}">PNG</a> ·
<a href="/export.xlsx?{{.Query}}">XLSX</a> ·
<a href="/export.parquet?{{.Query}}">Parquet</a>
{{- if .Summary}} · {{.Summary}}{{end}}
</footer>
{{- else}}
<p class="message">{{.Result.Message}}</p>
{{- end}}
</main>
</body>
</html>
`))

// WritePage 渲染 HTML 页面
func WritePage(w io.Writer, data PageData) error {
	return pageTemplate.Execute(w, data)
}
