package actions

// Category groups actions in help output.
type Category string

// Standard action categories for organizing help display
const (
	CategoryGeneral Category = "General"
	CategoryControl Category = "Control"
	CategoryShell   Category = "Shell"
	CategoryInfo    Category = "Info"
	CategorySpecial Category = "Special" // Hidden from main help
)

// CategoryOrder defines the display order for help screens
var CategoryOrder = []Category{
	CategoryGeneral,
	CategoryInfo,
	CategoryShell,
	CategoryControl,
}

// GetCategoryPriority returns the display priority for a category (lower = higher priority)
func GetCategoryPriority(category Category) int {
	for i, cat := range CategoryOrder {
		if cat == category {
			return i
		}
	}
	return len(CategoryOrder) // Unknown categories go to the end
}

// IsHiddenCategory returns true if the category should be hidden from main help
func IsHiddenCategory(category Category) bool {
	return category == CategorySpecial
}
