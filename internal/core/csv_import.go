package core

import (
	"fmt"
	"os"
	"strings"

	"airr.io/student-analytics/internal/store"
	"airr.io/student-analytics/internal/utils"
)

const defaultGraduationYear = 2024

// Positional layout of an import row. The header line is never consulted.
const (
	colName = iota
	colAge
	colCity
	colState
	colSchoolName
	colSchoolType
	colSchoolState
	colSchoolCity
	colCumulativeGPA
	colUnweightedGPA
	colWeightedGPA
	colRigorCourses
	colCreditsEarned
	colGraduationYear
	colMajorInterest // optional trailing column
)

// ParseStudentCSV turns header-plus-rows text into normalized records.
//
// Fields are split on every comma; quoted fields containing commas are not
// supported and will shift the remaining columns. Values that fail to parse
// fall back to their defaults, so a row never fails on its own. An input with
// no data rows yields an empty dataset.
func ParseStudentCSV(text string) store.Dataset {
	lines := strings.Split(text, "\n")
	if len(lines) <= 1 {
		return store.Dataset{}
	}

	records := store.Dataset{}
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		values := strings.Split(line, ",")
		records = append(records, parseStudentRow(len(records)+1, values))
	}
	return records
}

func parseStudentRow(position int, values []string) store.StudentRecord {
	field := func(i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
	text := func(i int) string { return utils.StripQuotes(field(i)) }

	name := text(colName)
	if name == "" {
		name = "Unknown"
	}
	graduationYear := utils.IntOr(field(colGraduationYear), defaultGraduationYear)
	if graduationYear == 0 {
		graduationYear = defaultGraduationYear
	}

	return store.StudentRecord{
		ID:                fmt.Sprintf("csv-%d", position),
		Name:              name,
		Age:               utils.IntOr(field(colAge), 0),
		City:              text(colCity),
		State:             text(colState),
		SchoolName:        text(colSchoolName),
		SchoolType:        parseSchoolType(text(colSchoolType)),
		SchoolState:       text(colSchoolState),
		SchoolCity:        text(colSchoolCity),
		CumulativeGPA:     utils.FloatOr(field(colCumulativeGPA), 0),
		UnweightedGPA:     utils.FloatOr(field(colUnweightedGPA), 0),
		WeightedGPA:       utils.FloatOr(field(colWeightedGPA), 0),
		RigorCoursesCount: utils.IntOr(field(colRigorCourses), 0),
		CreditsEarned:     utils.IntOr(field(colCreditsEarned), 0),
		MajorInterest:     text(colMajorInterest),
		GraduationYear:    graduationYear,
	}
}

func parseSchoolType(s string) store.SchoolType {
	if strings.EqualFold(s, string(store.SchoolTypeCollege)) {
		return store.SchoolTypeCollege
	}
	return store.SchoolTypeHighSchool
}

// ImportCSVFile reads and parses a file from disk.
func ImportCSVFile(path string) (store.Dataset, error) {
	contentBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv file %s: %w", path, err)
	}
	return ParseStudentCSV(string(contentBytes)), nil
}
