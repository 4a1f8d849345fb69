// Package course models the required-course catalog of a degree programme and
// folds a student's per-course grades into credit-weighted category averages.
package course

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Category is one of the fixed curriculum groupings used as model features.
type Category string

// The closed set of categories, in feature order.
const (
	CategoryPublic       Category = "public"
	CategoryPolitical    Category = "political"
	CategoryEnglish      Category = "english"
	CategoryMathScience  Category = "math_science"
	CategoryBasicSubject Category = "basic_subject"
	CategoryBasicMajor   Category = "basic_major"
	CategoryMajor        Category = "major"
	CategoryPractice     Category = "practice"
	CategoryInnovation   Category = "innovation"

	// CategoryUnknown marks a catalog label outside the closed set.
	CategoryUnknown Category = "unknown"
)

// categories lists the closed set in feature order.
var categories = []Category{
	CategoryPublic,
	CategoryPolitical,
	CategoryEnglish,
	CategoryMathScience,
	CategoryBasicSubject,
	CategoryBasicMajor,
	CategoryMajor,
	CategoryPractice,
	CategoryInnovation,
}

// NumCategories is the size of the closed category set.
const NumCategories = 9

// Categories returns the closed set of categories in feature order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// index returns the position of c in the closed set, or -1.
func (c Category) index() int {
	for i, k := range categories {
		if k == c {
			return i
		}
	}
	return -1
}

// IsKnown reports whether c belongs to the closed set.
func (c Category) IsKnown() bool {
	return c.index() >= 0
}

// String returns the feature key of the category.
func (c Category) String() string {
	return string(c)
}

// curriculumLabels maps the labels used in the training-plan sheets to categories.
// Several administrative course groups all count as public courses.
var curriculumLabels = map[string]Category{
	"体育":          CategoryPublic,
	"军事理论":        CategoryPublic,
	"安全教育":        CategoryPublic,
	"心理健康":        CategoryPublic,
	"公共课":         CategoryPublic,
	"思想政治理论":      CategoryPolitical,
	"英语":          CategoryEnglish,
	"数学与自然科学":     CategoryMathScience,
	"学科基础":        CategoryBasicSubject,
	"专业基础":        CategoryBasicMajor,
	"专业课":         CategoryMajor,
	"实践教学":        CategoryPractice,
	"学院特色创新必修5学分": CategoryInnovation,
}

// NormalizeLabel applies NFKC folding and removes every whitespace rune,
// so full-width spaces and stray padding in spreadsheet cells do not matter.
func NormalizeLabel(s string) string {
	folded := norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, folded)
}

// CategoryFromLabel maps a catalog category label to a Category.
// Both the curriculum labels and the English feature keys are accepted.
func CategoryFromLabel(label string) Category {
	key := NormalizeLabel(label)
	if key == "" {
		return CategoryUnknown
	}
	if c, ok := curriculumLabels[key]; ok {
		return c
	}
	if c := Category(strings.ToLower(key)); c.IsKnown() {
		return c
	}
	return CategoryUnknown
}
