// Package web 提供图表页面、导出和实时日志的 HTTP 接口
package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"OverListing/src/processor"
	"OverListing/src/render"
	"OverListing/src/storage"
	"OverListing/src/utils"
)

const (
	xlsxContentType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	parquetContentType = "application/vnd.apache.parquet"
	exportName         = "over_listing"
)

// Server 每个请求都从 Store 取当前数据集并重新过滤
type Server struct {
	store  *processor.Store
	opts   render.Options
	logger *storage.Logger
}

func NewServer(store *processor.Store, opts render.Options, logger *storage.Logger) *Server {
	return &Server{store: store, opts: opts, logger: logger}
}

// Handler 注册所有路由
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /spec.json", s.handleSpec)
	mux.HandleFunc("GET /chart.png", s.handlePNG)
	mux.HandleFunc("GET /export.xlsx", s.handleXLSX)
	mux.HandleFunc("GET /export.parquet", s.handleParquet)
	mux.HandleFunc("GET /logs", s.handleLogs)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.withLogging(mux)
}

// Selection 解析请求中的邮编选择
// 未提交表单时默认全选; submitted=1 时以 postcode 参数为准, 可以为空
func Selection(q url.Values, ds *processor.Dataset) []string {
	postcodes := q["postcode"]
	if q.Get("submitted") == "" && len(postcodes) == 0 {
		return ds.SortedPostcodes()
	}
	return postcodes
}

// selectionQuery 生成导出链接使用的查询串
func selectionQuery(selection []string) string {
	q := url.Values{}
	q.Set("submitted", "1")
	for _, p := range selection {
		q.Add("postcode", p)
	}
	return q.Encode()
}

// view 取数据集并过滤; 失败时已写出 500
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*processor.View, bool) {
	ds, err := s.store.Get()
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return nil, false
	}
	v, err := ds.Filter(Selection(r.URL.Query(), ds))
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return v, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := render.PageData{Title: s.opts.Title}

	status := http.StatusOK
	ds, err := s.store.Get()
	if err != nil {
		status = http.StatusInternalServerError
		data.Error = err.Error()
		s.logger.Error("加载数据失败: " + err.Error())
	} else {
		selection := Selection(r.URL.Query(), ds)
		v, err := ds.Filter(selection)
		if err != nil {
			status = http.StatusInternalServerError
			data.Error = err.Error()
		} else {
			data.Result = render.Build(v, s.opts)
			data.Summary = ds.Summary()
			data.Query = template.URL(selectionQuery(v.Selection))
		}
		data.Postcodes = options(ds.SortedPostcodes(), selection)
	}

	var buf bytes.Buffer
	if err := render.WritePage(&buf, data); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func options(all, selection []string) []render.PostcodeOption {
	out := make([]render.PostcodeOption, len(all))
	for i, p := range all {
		out[i] = render.PostcodeOption{Value: p, Selected: utils.Contains(selection, p)}
	}
	return out
}

func (s *Server) handleSpec(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	res := render.Build(v, s.opts)

	var body interface{} = res.Spec
	if !res.HasChart() {
		body = map[string]string{"message": res.Message}
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("写入 spec 失败: " + err.Error())
	}
}

func (s *Server) handlePNG(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := render.RenderPNG(&buf, v, s.opts); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, render.ErrNoSelection) || errors.Is(err, render.ErrNoData) {
			status = http.StatusUnprocessableEntity
		}
		s.fail(w, status, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleXLSX(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := utils.WriteExcel(v.Frame, &buf); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	attach(w, xlsxContentType, exportName+".xlsx")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleParquet(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := utils.WriteParquet(&buf, v.Points()); err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	attach(w, parquetContentType, exportName+".parquet")
	_, _ = buf.WriteTo(w)
}

func attach(w http.ResponseWriter, contentType, name string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
}

// handleLogs 持续推送日志, 客户端断开或日志关闭时退出
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	logChan := s.logger.Subscribe()
	defer s.logger.Unsubscribe(logChan)

	flusher, _ := w.(http.Flusher)
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case msg, ok := <-logChan:
			if !ok {
				return
			}
			if _, err := fmt.Fprint(w, msg); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.Get()
	if err != nil {
		s.fail(w, http.StatusServiceUnavailable, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok: %s, loaded %s\n", ds.Summary(), s.store.LoadedAt().Format(time.RFC3339))
}

func (s *Server) fail(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error(err.Error())
	}
	http.Error(w, err.Error(), status)
}

// statusRecorder 记录状态码, 透传 Flush 供 /logs 使用
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/logs" {
			return
		}
		s.logger.Debug(fmt.Sprintf("%s %s %d %v", r.Method, r.URL.RequestURI(), rec.status, time.Since(start)))
	})
}
