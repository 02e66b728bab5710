// reader.go
package file

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrUnsupportedFormat   = errors.New("unsupported table format")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	ErrNoHeader            = errors.New("table has no header row")
)

// Options 读取选项
type Options struct {
	SheetName string // xlsx 工作表, 为空取第一个
	Encoding  string // csv 字符集
}

// ReadTable 按扩展名读取数据表, 所有列均为字符串
func ReadTable(filePath string, opts Options) (dataframe.DataFrame, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".csv", ".txt":
		f, err := os.Open(filePath)
		if err != nil {
			return dataframe.New(), fmt.Errorf("打开数据文件失败: %w", err)
		}
		defer f.Close()

		df, err := ReadCSV(f, opts.Encoding)
		if err != nil {
			return dataframe.New(), fmt.Errorf("%s: %w", filePath, err)
		}
		return df, nil
	case ".xlsx":
		return ReadXLSX(filePath, opts.SheetName)
	default:
		return dataframe.New(), fmt.Errorf("%w: %s", ErrUnsupportedFormat, filePath)
	}
}

// decoderFor 根据名称返回解码器
func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		// 去掉可能存在的 BOM
		return unicode.UTF8BOM.NewDecoder(), nil
	case "gbk":
		return simplifiedchinese.GBK.NewDecoder(), nil
	case "gb18030":
		return simplifiedchinese.GB18030.NewDecoder(), nil
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}

// ReadCSV 读取带表头的 csv
func ReadCSV(r io.Reader, enc string) (dataframe.DataFrame, error) {
	dec, err := decoderFor(enc)
	if err != nil {
		return dataframe.New(), err
	}

	reader := csv.NewReader(transform.NewReader(r, dec))
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err == io.EOF {
		return dataframe.New(), ErrNoHeader
	}
	if err != nil {
		return dataframe.New(), fmt.Errorf("读取表头失败: %w", err)
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// 列数不一致等格式错误直接失败
			return dataframe.New(), fmt.Errorf("读取数据行失败: %w", err)
		}
		rows = append(rows, row)
	}

	return convertRowsToDataFrame(headers, rows), nil
}

// ReadXLSX 读取 xlsx 工作表, 第一行为表头
func ReadXLSX(filePath, sheetName string) (dataframe.DataFrame, error) {
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return dataframe.New(), fmt.Errorf("xlsx open file false: %w", err)
	}

	if len(xlFile.Sheets) == 0 {
		return dataframe.New(), fmt.Errorf("excel文件中没有工作表: %s", filePath)
	}

	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		var ok bool
		sheet, ok = xlFile.Sheet[sheetName]
		if !ok {
			return dataframe.New(), fmt.Errorf("工作表 %s 不存在: %s", sheetName, filePath)
		}
	}

	return convertSheetToDataFrame(sheet)
}

// convertSheetToDataFrame 将xlsx.Sheet转换为dataframe.DataFrame
func convertSheetToDataFrame(sheet *xlsx.Sheet) (dataframe.DataFrame, error) {
	if len(sheet.Rows) == 0 {
		return dataframe.New(), ErrNoHeader
	}

	var headers []string
	for _, cell := range sheet.Rows[0].Cells {
		headers = append(headers, strings.TrimSpace(cell.String()))
	}
	// 去掉表头尾部的空单元格
	for len(headers) > 0 && headers[len(headers)-1] == "" {
		headers = headers[:len(headers)-1]
	}
	if len(headers) == 0 {
		return dataframe.New(), ErrNoHeader
	}

	var rows [][]string
	for _, row := range sheet.Rows[1:] {
		if row == nil {
			continue
		}
		values := make([]string, len(headers))
		empty := true
		for i, cell := range row.Cells {
			if i >= len(headers) { // 确保不超出列数范围
				break
			}
			values[i] = cell.String()
			if strings.TrimSpace(values[i]) != "" {
				empty = false
			}
		}
		// 跳过完全空的行
		if empty {
			continue
		}
		rows = append(rows, values)
	}

	return convertRowsToDataFrame(headers, rows), nil
}

// convertRowsToDataFrame 行数据转为字符串列
func convertRowsToDataFrame(headers []string, rows [][]string) dataframe.DataFrame {
	columns := make([][]string, len(headers))
	for i := range columns {
		columns[i] = make([]string, 0, len(rows))
	}

	for _, row := range rows {
		for i := range headers {
			columns[i] = append(columns[i], strings.TrimSpace(row[i]))
		}
	}

	seriesList := make([]series.Series, len(headers))
	for i, colName := range headers {
		seriesList[i] = series.New(columns[i], series.String, strings.TrimSpace(colName))
	}

	return dataframe.New(seriesList...)
}
