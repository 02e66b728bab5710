package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
}

func TestLoadConfigsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.json", `{"data_file": "data/blog_viz.csv"}`)

	cfg, dcfg, err := loadConfigs(dir, "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, "data/blog_viz.csv", cfg.DataFile)
	assert.Equal(t, DefaultTitle, cfg.Title)
	assert.Equal(t, DefaultEncoding, cfg.Encoding)
	assert.Equal(t, 1000, cfg.Chart.Width)
	assert.Equal(t, 600, cfg.Chart.Height)
	assert.Equal(t, time.Minute, cfg.RotateInterval.Std())
	assert.Zero(t, cfg.ReloadInterval)

	assert.Equal(t, DefaultDataConfig(), dcfg)
	assert.Equal(t, []string{"Average % Over Listing Price"}, dcfg.Pinned)
}

func TestLoadConfigsRepoFiles(t *testing.T) {
	cfg, dcfg, err := loadConfigs("../../config", "config.json", "dataconfig.json")
	require.NoError(t, err)

	assert.True(t, cfg.Watch)
	assert.Equal(t, DefaultDataConfig().Columns, dcfg.Columns)
}

func TestLoadConfigsErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, _, err := loadConfigs(t.TempDir(), "config.json", "dataconfig.json")
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("both files malformed", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.json", `{`)
		writeFile(t, dir, "dataconfig.json", `[`)
		_, _, err := loadConfigs(dir, "config.json", "dataconfig.json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "解析Config失败")
		assert.Contains(t, err.Error(), "解析DataConfig失败")
	})

	t.Run("no data file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.json", `{}`)
		_, _, err := loadConfigs(dir, "config.json", "dataconfig.json")
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("bad duration", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "config.json", `{"data_file": "x.csv", "rotate_interval": "often"}`)
		_, _, err := loadConfigs(dir, "config.json", "dataconfig.json")
		assert.Error(t, err)
	})
}

func TestLoaderCachesFailure(t *testing.T) {
	dir := t.TempDir()
	l := &loader{}

	_, _, err := l.load(dir, "config.json", "dataconfig.json")
	require.ErrorIs(t, err, os.ErrNotExist)

	// 之后写入配置也不会重新读取, 错误一直保留
	writeFile(t, dir, "config.json", `{"data_file": "data/blog_viz.csv"}`)
	cfg, dcfg, err := l.load(dir, "config.json", "dataconfig.json")
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, cfg)
	assert.Nil(t, dcfg)

	_, _, err = l.load("../../config", "config.json", "dataconfig.json")
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
}

func TestLoaderSameAndOtherLocation(t *testing.T) {
	l := &loader{}

	cfg, dcfg, err := l.load("../../config", "config.json", "dataconfig.json")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.NotNil(t, dcfg)

	again, _, err := l.load("../../config/", "config.json", "dataconfig.json")
	require.NoError(t, err)
	assert.Same(t, cfg, again)

	other, _, err := l.load(t.TempDir(), "config.json", "dataconfig.json")
	assert.ErrorIs(t, err, ErrAlreadyLoaded)
	assert.Nil(t, other)
}

func TestDataConfigValidate(t *testing.T) {
	require.NoError(t, DefaultDataConfig().Validate())

	cases := map[string]func(dc *DataConfig){
		"empty pinned":        func(dc *DataConfig) { dc.Pinned = nil },
		"pinned not a number": func(dc *DataConfig) { dc.Pinned = []string{"Postcode"} },
		"pinned unknown":      func(dc *DataConfig) { dc.Pinned = []string{"Spread"} },
		"duplicate display":   func(dc *DataConfig) { dc.Columns[4].Display = dc.Columns[3].Display },
		"duplicate source":    func(dc *DataConfig) { dc.Columns[4].Source = dc.Columns[3].Source },
		"unknown role":        func(dc *DataConfig) { dc.Columns[0].Role = "area" },
		"two years":           func(dc *DataConfig) { dc.Columns[2].Role = RoleYear },
		"blank source":        func(dc *DataConfig) { dc.Columns[1].Source = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			dc := DefaultDataConfig()
			mutate(dc)
			assert.ErrorIs(t, dc.Validate(), ErrInvalidConfig)
		})
	}
}

func TestDataConfigLookups(t *testing.T) {
	dc := DefaultDataConfig()
	assert.Equal(t, "Postcode", dc.DisplayFor(RolePostcode))
	assert.Equal(t, "Year", dc.DisplayFor(RoleYear))
	assert.Equal(t, "Sample", dc.DisplayFor(RoleSample))
	assert.Empty(t, dc.DisplayFor("area"))
	assert.Len(t, dc.Percentages(), 6)
	assert.Equal(t, "Minimum % Over Listing Price", dc.Percentages()[0])
}

func TestParseSize(t *testing.T) {
	n, err := ParseSize("10 * 1024 * 1024")
	require.NoError(t, err)
	assert.Equal(t, int64(10*1024*1024), n)

	n, err = ParseSize("4096")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), n)

	for _, bad := range []string{"", "ten", "10 * x", "0", "-5"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestDurationJSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"90s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	out, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))

	require.NoError(t, d.UnmarshalJSON([]byte(`""`)))
	assert.Zero(t, d)
}
