// Package student contains the student record used by the prediction engine.
//
// A Record is built once per cohort file and holds the recorded grade of every
// course the student has taken. Courses absent from the map are "not taken";
// the threshold search hypothesises grades for exactly those courses.
//
// # Ingestion rules
//
// Grade cells arrive either as numbers or as five-level letter grades:
//
//	优 -> 95, 良 -> 85, 中 -> 75, 及格 -> 65, 不及格 -> 40
//
// Cells that are neither, grades outside [0,100] and elective rows are
// filtered out at ingestion without failing the run:
//
//	g, err := student.ParseGrade("良") // 85, nil
//	_, err = student.ParseGrade("n/a") // ErrInvalidGrade
//
// The package has no external dependencies.
package student
