package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/butp-hub/destination-predictor/internal/domain/course"
	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// Positional layout of the curriculum export, used when headers are not recognised.
const (
	catalogTypeCol      = 0
	catalogNameCol      = 2
	catalogCreditCol    = 3
	catalogAttributeCol = 8
)

// LoadCatalog reads a catalog file and keeps its required courses.
func LoadCatalog(path string, logger *slog.Logger) (*course.Catalog, error) {
	t, err := openTable(path)
	if err != nil {
		return nil, err
	}
	return buildCatalog(t, logger)
}

// ReadCatalog reads a catalog from r with the given delimiter.
func ReadCatalog(r io.Reader, comma rune, logger *slog.Logger) (*course.Catalog, error) {
	t, err := readTable(r, comma)
	if err != nil {
		return nil, shared.WrapError("ingest", "ReadCatalog", shared.ErrConfiguration,
			"cannot parse catalog", err)
	}
	return buildCatalog(t, logger)
}

func buildCatalog(t *table, logger *slog.Logger) (*course.Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nameCol := t.pick("Course_Name", "课程名称", "课程名")
	typeCol := t.pick("Course_Type", "课程类别", "类别")
	creditCol := t.pick("Credit", "学分")
	attrCol := t.pick("Course_Attribute", "课程属性", "属性")

	// Without a full set of named columns, fall back to the export layout.
	if nameCol < 0 || typeCol < 0 || creditCol < 0 || attrCol < 0 {
		if len(t.header) <= catalogAttributeCol {
			return nil, shared.WrapError("catalog", "Load", shared.ErrConfiguration,
				"catalog file is missing required columns",
				fmt.Errorf("need name, category, credit and attribute columns, got %v", t.header))
		}
		nameCol, typeCol, creditCol, attrCol = catalogNameCol, catalogTypeCol, catalogCreditCol, catalogAttributeCol
	}

	entries := make([]course.Course, 0, len(t.rows))
	for i, row := range t.rows {
		attr := cell(row, attrCol)
		if !course.IsRequired(attr) {
			continue
		}
		name := cell(row, nameCol)
		credit, err := strconv.ParseFloat(cell(row, creditCol), 64)
		if err != nil {
			return nil, shared.WrapError("catalog", "Load", shared.ErrConfiguration,
				"course credit is not a number", fmt.Errorf("row %d (%s): %w", i+2, name, err))
		}
		label := cell(row, typeCol)
		entries = append(entries, course.Course{
			Name:     name,
			Label:    label,
			Category: course.CategoryFromLabel(label),
			Credit:   credit,
			Required: true,
		})
	}

	catalog, err := course.NewCatalog(entries)
	if err != nil {
		return nil, err
	}

	counts := catalog.CategoryCounts()
	if n := counts[course.CategoryUnknown]; n > 0 {
		logger.Warn("catalog has courses outside the category set; they do not contribute to features",
			"courses", n)
	}
	logger.Info("catalog loaded", "required_courses", catalog.Len(), "categories", len(counts))
	return catalog, nil
}
