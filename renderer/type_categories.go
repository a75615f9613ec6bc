package renderer

import (
	"strings"

	"github.com/etnz/kapytal"
)

// CategoryRow is one category of the forest.
type CategoryRow struct {
	Indent string
	Name   string
	Type   string
	// Root is set on top level categories, the only ones showing their type.
	Root bool
}

// Categories is the category forest with the payees and tags.
type Categories struct {
	Rows   []CategoryRow
	Payees []string
	Tags   []string
}

// NewCategories lists the categories in tree order, then the payees and the tags by name.
func NewCategories(rk *kapytal.RecordKeeper) *Categories {
	c := &Categories{}
	rk.WalkCategories(func(cat *kapytal.Category, depth int) {
		c.Rows = append(c.Rows, CategoryRow{
			Indent: strings.Repeat("  ", depth),
			Name:   cat.Name(),
			Type:   strings.ToLower(cat.Type().String()),
			Root:   depth == 0,
		})
	})
	for _, p := range rk.Payees() {
		c.Payees = append(c.Payees, p.Name())
	}
	for _, t := range rk.Tags() {
		c.Tags = append(c.Tags, t.Name())
	}
	return c
}
