package course

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/butp-hub/destination-predictor/internal/domain/shared"
)

// Course is a single catalog entry. Immutable once loaded.
type Course struct {
	Name     string
	Category Category
	Label    string // raw category label from the catalog sheet
	Credit   float64
	Required bool
}

// Catalog is the ordered list of required courses of one programme.
// It is loaded once per run and shared read-only between students.
type Catalog struct {
	courses []Course
	index   map[string]int
	digest  string
}

// NewCatalog keeps the required courses of entries, in order, and validates them.
// A catalog without required courses is a configuration error.
func NewCatalog(entries []Course) (*Catalog, error) {
	c := &Catalog{
		courses: make([]Course, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
	}

	for _, e := range entries {
		if !e.Required {
			continue
		}
		e.Name = strings.TrimSpace(e.Name)
		if e.Name == "" {
			continue
		}
		if math.IsNaN(e.Credit) || e.Credit <= 0 {
			return nil, shared.WrapError("catalog", "Validate", shared.ErrValueOutOfRange,
				"course credit must be positive", fmt.Errorf("%s: %v", e.Name, e.Credit))
		}
		if _, dup := c.index[e.Name]; dup {
			return nil, shared.WrapError("catalog", "Validate", shared.ErrConfiguration,
				"course listed twice in catalog", fmt.Errorf("%s", e.Name))
		}
		if e.Category == "" {
			e.Category = CategoryFromLabel(e.Label)
		}
		c.index[e.Name] = len(c.courses)
		c.courses = append(c.courses, e)
	}

	if len(c.courses) == 0 {
		return nil, shared.ErrCatalogEmpty
	}
	c.digest = digestCourses(c.courses)
	return c, nil
}

// Digest identifies the catalog contents: name, category and credit of every
// required course in catalog order.
func (c *Catalog) Digest() string {
	return c.digest
}

func digestCourses(courses []Course) string {
	var sb strings.Builder
	for _, course := range courses {
		sb.WriteString(course.Name)
		sb.WriteByte(0)
		sb.WriteString(string(course.Category))
		sb.WriteByte(0)
		sb.WriteString(strconv.FormatFloat(course.Credit, 'g', -1, 64))
		sb.WriteByte('\n')
	}
	sum := blake2b.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Courses returns a copy of the required courses in catalog order.
func (c *Catalog) Courses() []Course {
	out := make([]Course, len(c.courses))
	copy(out, c.courses)
	return out
}

// Len returns the number of required courses.
func (c *Catalog) Len() int {
	return len(c.courses)
}

// Lookup returns the course with the given name.
func (c *Catalog) Lookup(name string) (Course, bool) {
	i, ok := c.index[name]
	if !ok {
		return Course{}, false
	}
	return c.courses[i], true
}

// Names returns the course names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.courses))
	for i, course := range c.courses {
		out[i] = course.Name
	}
	return out
}

// Missing returns the required courses absent from scores, in catalog order,
// together with their total credit.
func (c *Catalog) Missing(scores map[string]float64) ([]Course, float64) {
	var (
		missing []Course
		credits float64
	)
	for _, course := range c.courses {
		if _, taken := scores[course.Name]; taken {
			continue
		}
		missing = append(missing, course)
		credits += course.Credit
	}
	return missing, credits
}

// CategoryCounts returns how many required courses fall in each category label.
func (c *Catalog) CategoryCounts() map[Category]int {
	out := make(map[Category]int)
	for _, course := range c.courses {
		out[course.Category]++
	}
	return out
}

// IsRequired reports whether a catalog attribute cell marks a required course.
func IsRequired(attribute string) bool {
	a := strings.TrimSpace(attribute)
	return strings.Contains(a, "必修") || strings.EqualFold(a, "required")
}
