package exportsvc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/thehouse/platform/core/academic"
	"github.com/thehouse/platform/core/school"
)

func TestBuildAttendanceWorkbook(t *testing.T) {
	date1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	date2 := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	matrix := AttendanceMatrix{
		Class: school.Class{ID: 7, Name: "Advanced A"},
		Students: []school.Student{
			{ID: 1, Name: "Joao Pedro"},
			{ID: 2, Name: "Maria Clara"},
		},
		Lessons: []academic.Lesson{
			{ID: 10, ClassID: 7, Date: date1},
			{ID: 11, ClassID: 7, Date: date2},
		},
		Records: map[int]map[int]academic.Attendance{
			10: {
				1: {LessonID: 10, StudentID: 1, Status: academic.AttendancePresent},
				2: {LessonID: 10, StudentID: 2, Status: academic.AttendanceAbsent},
			},
			11: {
				1: {LessonID: 11, StudentID: 1, Status: academic.AttendanceLate},
				// Maria joined after this lesson: no roster row
			},
		},
	}

	buf, err := BuildAttendanceWorkbook(matrix)
	require.NoError(t, err)
	require.NotZero(t, buf.Len())

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	cell := func(ref string) string {
		val, err := f.GetCellValue("Attendance", ref)
		require.NoError(t, err)
		return val
	}

	// header: student name, one column per lesson date, then the totals
	assert.Equal(t, "Student", cell("A1"))
	assert.Equal(t, "02/03/2026", cell("B1"))
	assert.Equal(t, "04/03/2026", cell("C1"))
	assert.Equal(t, "Present", cell("D1"))
	assert.Equal(t, "Absent", cell("E1"))

	// late still counts towards the present total
	assert.Equal(t, "Joao Pedro", cell("A2"))
	assert.Equal(t, "P", cell("B2"))
	assert.Equal(t, "L", cell("C2"))
	assert.Equal(t, "2", cell("D2"))
	assert.Equal(t, "0", cell("E2"))

	assert.Equal(t, "Maria Clara", cell("A3"))
	assert.Equal(t, "A", cell("B3"))
	assert.Equal(t, "", cell("C3"))
	assert.Equal(t, "1", cell("E3"))
}

func TestBuildAttendanceWorkbookEmptyClass(t *testing.T) {
	buf, err := BuildAttendanceWorkbook(AttendanceMatrix{Class: school.Class{ID: 3, Name: "Kids B"}})
	require.NoError(t, err)
	assert.NotZero(t, buf.Len())
}

func TestAttendanceFilename(t *testing.T) {
	assert.Equal(t, "attendance_class_7.xlsx", AttendanceFilename(school.Class{ID: 7, Name: "Advanced A"}))
}
