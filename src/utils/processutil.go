package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/go-gota/gota/dataframe"
	"github.com/parquet-go/parquet-go"
	"github.com/xuri/excelize/v2"
)

// DefaultSheet 导出 Excel 的工作表名
const DefaultSheet = "Sheet1"

func Contains[T comparable](slice []T, item T) bool {
	for _, v := range slice {
		if v == item {
			return true
		}
	}
	return false
}

// 辅助函数：判断DataFrame是否有某列
func HasColumn(df dataframe.DataFrame, name string) bool {
	return Contains(df.Names(), name)
}

// WriteExcel 把 DataFrame 写成 xlsx, 第一行为列名
func WriteExcel(df dataframe.DataFrame, w io.Writer) error {
	f, err := excelFile(df)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("写入Excel失败: %w", err)
	}
	return nil
}

func SaveToExcel(df dataframe.DataFrame, filePath string) error {
	f, err := excelFile(df)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func excelFile(df dataframe.DataFrame) (*excelize.File, error) {
	f := excelize.NewFile()

	// 写入列名
	colNames := df.Names()
	for i, name := range colNames {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetCellValue(DefaultSheet, cell, name); err != nil {
			f.Close()
			return nil, err
		}
	}

	// 写入数据, 保留每列的类型
	for colIdx, colName := range colNames {
		col := df.Col(colName)
		for rowIdx := 0; rowIdx < df.Nrow(); rowIdx++ {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				f.Close()
				return nil, err
			}
			if err := f.SetCellValue(DefaultSheet, cell, col.Elem(rowIdx).Val()); err != nil {
				f.Close()
				return nil, err
			}
		}
	}
	return f, nil
}

// WriteParquet 按结构体 tag 推断 schema 写 parquet
func WriteParquet[T any](w io.Writer, rows []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("写入parquet失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("关闭parquet失败: %w", err)
	}
	return nil
}

// SaveToParquet 写入文件, 编码失败时不创建文件
func SaveToParquet[T any](rows []T, filePath string) error {
	var buf bytes.Buffer
	if err := WriteParquet(&buf, rows); err != nil {
		return err
	}
	if err := os.WriteFile(filePath, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("写入文件失败: %w", err)
	}
	return nil
}
