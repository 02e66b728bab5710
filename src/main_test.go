package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// 配置只加载一次, 所有用例共用同一个目录
var jsonFolder string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "overlisting")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := writeConfig(dir); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	jsonFolder = dir
	color.NoColor = true

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func writeConfig(dir string) error {
	dataFile, err := filepath.Abs("../data/blog_viz.csv")
	if err != nil {
		return err
	}
	cfg, err := json.Marshal(map[string]interface{}{
		"data_file": dataFile,
		"log_name":  filepath.Join(dir, "app.log"),
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, jsonFile), cfg, 0o644); err != nil {
		return err
	}
	dc, err := os.ReadFile("../config/dataconfig.json")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, dataJsonFile), dc, 0o644)
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", jsonFolder))
	err := cmd.Execute()
	return out.String(), err
}

func TestShowDefaultsToAllPostcodes(t *testing.T) {
	out, err := run(t, "show")
	require.NoError(t, err)
	assert.Contains(t, out, "AB1")
	assert.Contains(t, out, "AB2")
	assert.Contains(t, out, "2.68")
}

func TestShowSelection(t *testing.T) {
	out, err := run(t, "show", "--postcode", "AB1")
	require.NoError(t, err)
	assert.Contains(t, out, "AB1")
	assert.NotContains(t, out, "AB2")

	out, err = run(t, "show", "--postcode", "")
	require.NoError(t, err)
	assert.Contains(t, out, "Please select at least one postcode to plot.")
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "view.xlsx")
	out, err := run(t, "export", "-p", "AB2", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "已导出 3 行")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Sheet1")
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestExportParquetAndPNG(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"view.parquet", "view.png"} {
		path := filepath.Join(dir, name)
		_, err := run(t, "export", "-o", path)
		require.NoError(t, err, name)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestExportPNGEmptySelectionWritesNothing(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{{"-p", "ZZ9"}, {"-p", ""}} {
		path := filepath.Join(dir, "view.png")
		_, err := run(t, append([]string{"export", "-o", path}, args...)...)
		assert.Error(t, err)
		_, statErr := os.Stat(path)
		assert.ErrorIs(t, statErr, os.ErrNotExist)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	_, err := run(t, "export", "-o", filepath.Join(t.TempDir(), "view.csv"))
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "overlisting dev")
}
