package recipe

// DefaultRecipes maps a dish name to the catalog items it needs. Each call
// returns a fresh map.
func DefaultRecipes() map[string][]string {
	return map[string][]string{
		"pasta":    {"pasta-500g", "sauce-jar"},
		"sandwich": {"bread-loaf", "cheese-200g", "butter-200g"},
		"coffee":   {"coffee-200g", "milk-1l"},
		"tea":      {"tea-100g", "milk-1l", "sugar-1kg"},
	}
}
