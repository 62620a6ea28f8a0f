package quota

import "time"

// Categories of metered work. Each category has its own balance.
const (
	CategoryResume   = "resume"
	CategorySpecial  = "special"
	CategoryBehavior = "behavior"
)

// Quota is a user's remaining balance for one category.
type Quota struct {
	UserID    string    `json:"userId"`
	Category  string    `json:"category"`
	Remaining int       `json:"remaining"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Categories lists every known quota category.
func Categories() []string {
	return []string{CategoryResume, CategorySpecial, CategoryBehavior}
}

// ValidCategory reports whether the category is known.
func ValidCategory(category string) bool {
	switch category {
	case CategoryResume, CategorySpecial, CategoryBehavior:
		return true
	default:
		return false
	}
}
