package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"OverListing/src/config"
	"OverListing/src/datasource/file"
	"OverListing/src/processor"
	"OverListing/src/render"
	"OverListing/src/storage"
	"OverListing/src/utils"
	"OverListing/src/web"

	"github.com/robfig/cron"
	"github.com/spf13/cobra"
)

const (
	jsonFile     = "config.json"
	dataJsonFile = "dataconfig.json"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var jsonFolder string

	root := &cobra.Command{
		Use:          "overlisting",
		Short:        "% Over Listing Price chart by postcode",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(jsonFolder)
		},
	}
	root.PersistentFlags().StringVarP(&jsonFolder, "config", "c", "./config", "配置目录")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(jsonFolder)
		},
	}

	var postcodes []string
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the filtered view as a table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := loadView(jsonFolder, postcodes, cmd.Flags().Changed("postcode"))
			if err != nil {
				return err
			}
			return render.WriteTable(cmd.OutOrStdout(), view)
		},
	}
	showCmd.Flags().StringSliceVarP(&postcodes, "postcode", "p", nil, "邮编, 默认全部")

	var out string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered view to .xlsx, .parquet or .png",
		RunE: func(cmd *cobra.Command, _ []string) error {
			view, err := loadView(jsonFolder, postcodes, cmd.Flags().Changed("postcode"))
			if err != nil {
				return err
			}
			if err := exportView(view, out, jsonFolder); err != nil {
				return err
			}
			cmd.Printf("已导出 %d 行到 %s\n", len(view.Rows), out)
			return nil
		},
	}
	exportCmd.Flags().StringSliceVarP(&postcodes, "postcode", "p", nil, "邮编, 默认全部")
	exportCmd.Flags().StringVarP(&out, "out", "o", "over_listing.xlsx", "输出文件")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("overlisting %s (%s)\n", version, runtime.Version())
		},
	}

	root.AddCommand(serveCmd, showCmd, exportCmd, versionCmd)
	return root
}

func fileOptions(cfg *config.Config) file.Options {
	return file.Options{SheetName: cfg.SheetName, Encoding: cfg.Encoding}
}

// loadView 命令行模式: 读取一次数据并过滤
func loadView(jsonFolder string, postcodes []string, explicit bool) (*processor.View, error) {
	cfg, dc, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		return nil, err
	}
	ds, err := processor.Load(cfg.DataFile, fileOptions(cfg), dc)
	if err != nil {
		return nil, err
	}
	if !explicit {
		postcodes = ds.SortedPostcodes()
	}
	return ds.Filter(postcodes)
}

func exportView(view *processor.View, out, jsonFolder string) error {
	switch strings.ToLower(filepath.Ext(out)) {
	case ".xlsx":
		return utils.SaveToExcel(view.Frame, out)
	case ".parquet":
		return utils.SaveToParquet(view.Points(), out)
	case ".png":
		cfg, _, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
		if err != nil {
			return err
		}
		// 先渲染, 选择为空时不留下空文件
		var buf bytes.Buffer
		if err := render.RenderPNG(&buf, view, render.OptionsFrom(cfg)); err != nil {
			return err
		}
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("写入文件失败: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("不支持的导出格式: %s", out)
	}
}

func runServe(jsonFolder string) error {
	cfg, dc, err := config.LoadConfig(jsonFolder, jsonFile, dataJsonFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.SetMirror(os.Stderr)
	defer logger.Close()

	// 启动时加载失败直接退出
	store := processor.NewStore(func() (*processor.Dataset, error) {
		return processor.Load(cfg.DataFile, fileOptions(cfg), dc)
	})
	if err := store.Reload(); err != nil {
		logger.Fatal("加载数据失败: " + err.Error())
		return err
	}
	ds, _ := store.Get()
	logger.Info(fmt.Sprintf("数据已加载: %s (%s)", cfg.DataFile, ds.Summary()))

	maxSize, err := config.ParseSize(cfg.LogMaxSize)
	if err != nil {
		return err
	}

	// 设置定时任务
	c := cron.New()
	rotateSpec := fmt.Sprintf("@every %s", cfg.RotateInterval.Std())
	err = c.AddFunc(rotateSpec, func() {
		rotated, err := logger.CheckRotate(maxSize)
		if err != nil {
			logger.Error("日志轮转失败: " + err.Error())
		} else if rotated {
			logger.Info("日志已轮转")
		}
	})
	if err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}
	if cfg.ReloadInterval > 0 {
		reloadSpec := fmt.Sprintf("@every %s", cfg.ReloadInterval.Std())
		if err := c.AddFunc(reloadSpec, func() { reload(store, logger, "定时") }); err != nil {
			return fmt.Errorf("创建定时任务失败: %w", err)
		}
	}
	c.Start()
	defer c.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Watch {
		monitor, err := file.NewFileMonitor(cfg.DataFile)
		if err != nil {
			logger.Warning("无法监听数据文件: " + err.Error())
		} else {
			defer monitor.Close()
			go func() {
				err := monitor.Watch(ctx,
					func(string) { reload(store, logger, "文件变化") },
					func(err error) { logger.Warning("文件监听出错: " + err.Error()) })
				if err != nil {
					logger.Error("文件监听失败: " + err.Error())
				}
			}()
		}
	}

	// 请求继承 ctx, 收到信号时 /logs 等长连接随之结束
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           web.NewServer(store, render.OptionsFrom(cfg), logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	logger.Info(fmt.Sprintf("服务已启动 %s, 按Ctrl+C退出", cfg.Server.Addr))

	return waitForShutdown(ctx, srv, logger, errChan)
}

// reload 重新加载; 失败时页面只显示错误
func reload(store *processor.Store, logger *storage.Logger, reason string) {
	if err := store.Reload(); err != nil {
		logger.Error(fmt.Sprintf("重新加载失败(%s): %v", reason, err))
		return
	}
	ds, _ := store.Get()
	logger.Info(fmt.Sprintf("重新加载完成(%s): %s", reason, ds.Summary()))
}

func waitForShutdown(ctx context.Context, srv *http.Server, logger *storage.Logger, errChan <-chan error) error {
	select {
	case err := <-errChan:
		logger.Error("HTTP 服务异常: " + err.Error())
		return err
	case <-ctx.Done():
	}

	logger.Info("Received signal, shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
