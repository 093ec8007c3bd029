// Package exportsvc builds xlsx workbooks for front-office downloads.
package exportsvc

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/school"
)

const (
	minColWidth = 12
	maxColWidth = 40
)

// marks maps a roster status to its one-letter cell value.
var marks = map[academic.AttendanceStatus]string{
	academic.AttendancePresent: "P",
	academic.AttendanceAbsent:  "A",
	academic.AttendanceLate:    "L",
}

// AttendanceMatrix is the input of the per-class attendance workbook:
// one row per student, one column per lesson date.
type AttendanceMatrix struct {
	Class    school.Class
	Students []school.Student
	Lessons  []academic.Lesson
	// Records is keyed by lesson ID, then student ID.
	Records map[int]map[int]academic.Attendance
}

// BuildAttendanceWorkbook renders the matrix into an xlsx file and returns
// its serialized bytes, ready to stream as an attachment.
func BuildAttendanceWorkbook(m AttendanceMatrix) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Attendance"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, errors.Wrap(err, "renaming sheet")
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, errors.Wrap(err, "creating header style")
	}

	header := []string{"Student"}
	for _, l := range m.Lessons {
		header = append(header, l.Date.Format("02/01/2006"))
	}
	header = append(header, "Present", "Absent")

	for col, h := range header {
		cell := fmt.Sprintf("%s1", colName(col+1))
		if err = f.SetCellStr(sheet, cell, h); err != nil {
			return nil, errors.Wrap(err, "setting cell "+cell)
		}
	}
	end := colName(len(header)) + "1"
	_ = f.SetCellStyle(sheet, "A1", end, bold)
	_ = f.AutoFilter(sheet, "A1:"+end, nil)

	for r, student := range m.Students {
		row := r + 2
		if err = f.SetCellStr(sheet, "A"+fmt.Sprint(row), student.Name); err != nil {
			return nil, errors.Wrap(err, "setting student name")
		}

		var present, absent int
		for c, lesson := range m.Lessons {
			cell := fmt.Sprintf("%s%d", colName(c+2), row)
			att, ok := m.Records[lesson.ID][student.ID]
			if !ok {
				// student had no roster row for this lesson
				continue
			}
			if att.Status.Present() {
				present++
			} else {
				absent++
			}
			if err = f.SetCellStr(sheet, cell, marks[att.Status]); err != nil {
				return nil, errors.Wrap(err, "setting cell "+cell)
			}
		}
		_ = f.SetCellInt(sheet, fmt.Sprintf("%s%d", colName(len(m.Lessons)+2), row), present)
		_ = f.SetCellInt(sheet, fmt.Sprintf("%s%d", colName(len(m.Lessons)+3), row), absent)
	}

	fitColumns(f, sheet, header, len(m.Students))

	buf := new(bytes.Buffer)
	if err = f.Write(buf); err != nil {
		return nil, errors.Wrap(err, "serializing workbook")
	}
	return buf, nil
}

// AttendanceFilename names the download after the class.
func AttendanceFilename(class school.Class) string {
	return fmt.Sprintf("attendance_class_%d.xlsx", class.ID)
}

func fitColumns(f *excelize.File, sheet string, header []string, rows int) {
	for c := 1; c <= len(header); c++ {
		w := float64(len(header[c-1])) * 0.9
		if c == 1 {
			w = maxColWidth // student names
		}
		if w < minColWidth {
			w = minColWidth
		}
		if w > maxColWidth {
			w = maxColWidth
		}
		_ = f.SetColWidth(sheet, colName(c), colName(c), w)
	}
}

func colName(n int) string {
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}
