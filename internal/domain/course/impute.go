package course

// Weight is one sibling contribution in an imputation rule.
type Weight struct {
	From   Category
	Weight float64
}

// ImputeRule fills Target from a weighted average of its known siblings.
type ImputeRule struct {
	Target   Category
	Siblings []Weight
}

// DefaultImputeRules covers the two categories with sparse direct evidence.
// Rules apply in order, so innovation may draw on an imputed major.
var DefaultImputeRules = []ImputeRule{
	{
		Target: CategoryMajor,
		Siblings: []Weight{
			{CategoryBasicMajor, 0.50},
			{CategoryBasicSubject, 0.30},
			{CategoryMathScience, 0.20},
		},
	},
	{
		Target: CategoryInnovation,
		Siblings: []Weight{
			{CategoryPractice, 0.40},
			{CategoryMajor, 0.35},
			{CategoryBasicMajor, 0.15},
			{CategoryBasicSubject, 0.10},
		},
	},
}

// Impute applies DefaultImputeRules to v.
func Impute(v Vector) Vector {
	return ImputeWith(v, DefaultImputeRules)
}

// ImputeWith fills each unknown rule target with the weighted mean of the
// siblings that are known, renormalised over their weights. A target with no
// known sibling stays unknown.
func ImputeWith(v Vector, rules []ImputeRule) Vector {
	for _, rule := range rules {
		if v.Known(rule.Target) {
			continue
		}
		var num, den float64
		for _, s := range rule.Siblings {
			if !v.Known(s.From) {
				continue
			}
			num += s.Weight * v.Get(s.From)
			den += s.Weight
		}
		if den > 0 {
			v = v.With(rule.Target, num/den)
		}
	}
	return v
}
