package domain

import "github.com/shopspring/decimal"

type CatalogItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Brand    string          `json:"brand"`
	Size     string          `json:"size"`
	Unit     string          `json:"unit"`
	Tags     []string        `json:"tags"`
}

func (c CatalogItem) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
