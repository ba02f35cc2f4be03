// Package recipe turns free-form dish requests into catalog items.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/grocery-fulfillment/internal/cart"
	"github.com/joao-fontenele/grocery-fulfillment/internal/catalog"
	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

const (
	DefaultMaxInferred = 6
	perWordSearchLimit = 10
	minTokenLength     = 3
)

var numberWords = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

const numberWordAlt = `one|two|three|four|five|six|seven|eight|nine|ten`

var (
	servingsDigits    = regexp.MustCompile(`\bfor\s+(\d+)`)
	servingsWord      = regexp.MustCompile(`\bfor\s+(` + numberWordAlt + `)\b`)
	servingPhrase     = regexp.MustCompile(`\bfor\s+(?:\d+|` + numberWordAlt + `)\b(?:\s+(?:people|persons|person|servings|serving))?`)
	ingredientsPrefix = regexp.MustCompile(`^(?:the\s+)?ingredients?\s+for\s+`)
	wordPattern       = regexp.MustCompile(`\w+`)
)

// Words that never identify an ingredient on their own.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "some": true,
	"make": true, "want": true, "need": true, "please": true,
	"ingredient": true, "ingredients": true, "recipe": true,
}

type Resolution struct {
	Dish     string
	ItemIDs  []string
	Servings int
}

type Result struct {
	Dish       string          `json:"dish"`
	AddedNames []string        `json:"added_item_names"`
	Servings   int             `json:"servings"`
	Total      decimal.Decimal `json:"total"`
}

type Resolver struct {
	catalog     catalog.Store
	recipes     map[string][]string
	maxInferred int
}

type Option func(*Resolver)

func WithRecipes(recipes map[string][]string) Option {
	return func(r *Resolver) {
		r.recipes = make(map[string][]string, len(recipes))
		for dish, ids := range recipes {
			r.recipes[strings.ToLower(strings.TrimSpace(dish))] = append([]string(nil), ids...)
		}
	}
}

func WithMaxInferred(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxInferred = n
		}
	}
}

func NewResolver(store catalog.Store, opts ...Option) *Resolver {
	r := &Resolver{
		catalog:     store,
		recipes:     DefaultRecipes(),
		maxInferred: DefaultMaxInferred,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps text to catalog item ids. Exact recipe names win; otherwise
// every word of the dish is searched in the catalog by tag or name.
func (r *Resolver) Resolve(ctx context.Context, text string) (Resolution, error) {
	servings := ParseServings(text)
	dish := DishKey(text)

	if ids, ok := r.recipes[dish]; ok {
		return Resolution{Dish: dish, ItemIDs: append([]string(nil), ids...), Servings: servings}, nil
	}

	ids, err := r.infer(ctx, dish)
	if err != nil {
		return Resolution{}, err
	}
	if len(ids) == 0 {
		return Resolution{}, fmt.Errorf("%w for %q", domain.ErrNoIngredientsFound, text)
	}
	return Resolution{Dish: dish, ItemIDs: ids, Servings: servings}, nil
}

// Fill resolves text and adds every resolved item to c with the serving
// count as quantity. Items that vanished from the catalog are skipped.
func (r *Resolver) Fill(ctx context.Context, c *cart.Cart, text string) (Result, error) {
	res, err := r.Resolve(ctx, text)
	if err != nil {
		return Result{}, err
	}

	added := make([]string, 0, len(res.ItemIDs))
	for _, id := range res.ItemIDs {
		item, err := r.catalog.Lookup(ctx, id)
		if err != nil {
			return Result{}, fmt.Errorf("%w: lookup %s: %w", domain.ErrPersistence, id, err)
		}
		if item == nil {
			continue
		}
		if _, err := c.Add(ctx, item.ID, res.Servings, ""); err != nil {
			if errors.Is(err, domain.ErrItemNotFound) {
				continue
			}
			return Result{}, err
		}
		added = append(added, item.Name)
	}

	if len(added) == 0 {
		return Result{}, fmt.Errorf("%w for %q", domain.ErrNoIngredientsFound, text)
	}

	return Result{
		Dish:       res.Dish,
		AddedNames: added,
		Servings:   res.Servings,
		Total:      c.Total(),
	}, nil
}

func (r *Resolver) infer(ctx context.Context, dish string) ([]string, error) {
	var found []string
	seen := map[string]bool{}

	for _, word := range wordPattern.FindAllString(dish, -1) {
		if len(found) >= r.maxInferred {
			break
		}
		if stopWords[word] || utf8.RuneCountInString(word) < minTokenLength {
			continue
		}

		items, err := r.catalog.Search(ctx, word, perWordSearchLimit)
		if err != nil {
			return nil, fmt.Errorf("%w: search %q: %w", domain.ErrPersistence, word, err)
		}
		for _, it := range items {
			if len(found) >= r.maxInferred {
				break
			}
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			found = append(found, it.ID)
		}
	}
	return found, nil
}

// ParseServings reads "for 4" or "for four" from text. A literal number
// takes precedence; the default is one serving. The result never exceeds
// cart.MaxQuantity so it can be used as a line quantity directly.
func ParseServings(text string) int {
	text = strings.ToLower(text)
	if m := servingsDigits.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if errors.Is(err, strconv.ErrRange) {
			return cart.MaxQuantity
		}
		if err != nil {
			return 1
		}
		return min(max(1, n), cart.MaxQuantity)
	}
	if m := servingsWord.FindStringSubmatch(text); m != nil {
		return numberWords[m[1]]
	}
	return 1
}

// DishKey strips the serving phrase and a leading "ingredients for" and
// returns the lower-cased, whitespace-normalised remainder.
func DishKey(text string) string {
	key := strings.ToLower(text)
	key = servingPhrase.ReplaceAllString(key, " ")
	key = strings.Join(strings.Fields(key), " ")
	key = ingredientsPrefix.ReplaceAllString(key, "")
	return strings.Trim(key, " .,!?")
}
