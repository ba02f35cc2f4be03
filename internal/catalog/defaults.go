package catalog

import (
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

func item(id, name, category, price, size, unit string, tags ...string) domain.CatalogItem {
	return domain.CatalogItem{
		ID:       id,
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Brand:    "Generic",
		Size:     size,
		Unit:     unit,
		Tags:     tags,
	}
}

// DefaultItems returns the catalog used to seed an empty store. Each call
// returns a fresh slice.
func DefaultItems() []domain.CatalogItem {
	return []domain.CatalogItem{
		item("milk-1l", "Fresh Milk", "Dairy", "2.50", "1L", "bottle", "dairy"),
		item("eggs-12", "Eggs Pack", "Dairy", "3.00", "12 pcs", "box", "protein"),
		item("bread-loaf", "White Bread Loaf", "Bakery", "1.80", "1 loaf", "pack", "bread"),
		item("butter-200g", "Salted Butter", "Dairy", "2.00", "200g", "pack", "butter"),
		item("cheese-200g", "Cheddar Cheese", "Dairy", "3.75", "200g", "pack", "cheese"),

		item("pasta-500g", "Pasta", "Pantry", "1.50", "500g", "pack", "pasta"),
		item("sauce-jar", "Tomato Pasta Sauce", "Pantry", "2.20", "1 jar", "jar", "sauce"),
		item("rice-1kg", "Long Grain Rice", "Pantry", "2.40", "1kg", "bag", "rice"),
		item("flour-1kg", "All Purpose Flour", "Pantry", "1.20", "1kg", "bag", "flour"),
		item("sugar-1kg", "White Sugar", "Pantry", "1.10", "1kg", "bag", "sugar"),

		item("chips-small", "Potato Chips", "Snacks", "1.00", "50g", "pack", "snack"),
		item("cookies-200g", "Chocolate Chip Cookies", "Snacks", "2.50", "200g", "pack", "cookies"),

		item("coffee-200g", "Ground Coffee", "Beverages", "4.50", "200g", "pack", "coffee"),
		item("tea-100g", "Black Tea", "Beverages", "2.00", "100g", "pack", "tea"),

		item("apple-1kg", "Fresh Apples", "Fruits", "3.20", "1kg", "kg", "fruit"),
		item("banana-6", "Bananas", "Fruits", "1.80", "6 pcs", "bunch", "fruit"),
		item("tomato-1kg", "Fresh Tomatoes", "Vegetables", "2.10", "1kg", "kg", "veg"),
		item("onion-1kg", "Fresh Onions", "Vegetables", "1.70", "1kg", "kg", "veg"),
	}
}
