package core

import "sort"

// CategoryStat is the total amount recorded under one category.
type CategoryStat struct {
	Category string
	Total    Money
}

// SortCategoryStats orders stats by descending total, then by name.
func SortCategoryStats(stats []CategoryStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Total.Cents != stats[j].Total.Cents {
			return stats[i].Total.Cents > stats[j].Total.Cents
		}
		return stats[i].Category < stats[j].Category
	})
}
