package domain

// MenuItem is the summary returned by a menu search.
type MenuItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

// MenuItemDetail is the full view of a single active menu item.
type MenuItemDetail struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Allergens   string  `json:"allergens"`
	Price       float64 `json:"price"`
}
