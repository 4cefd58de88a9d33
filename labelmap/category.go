package labelmap

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Category is a class id paired with the name shown on annotations.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ConvertToCategories turns label map items into categories with ids in [1, maxNumClasses].
//
// Items outside that range are skipped, and for a repeated id the first item wins. When lm is nil
// the categories are generated as category_1 ... category_N.
//
// Arguments:
//   - lm: The parsed label map, or nil.
//   - maxNumClasses: The highest class id to keep.
//   - useDisplayName: Prefer display_name over name when the item has one.
//   - log: Receives a debug line per skipped item; nil uses the standard logger.
//
// Returns:
//   - []Category: The categories in label map order.
func ConvertToCategories(lm *LabelMap, maxNumClasses int, useDisplayName bool, log logrus.FieldLogger) []Category {
	if log == nil {
		log = logrus.StandardLogger()
	}

	var categories []Category
	if lm == nil {
		for id := 1; id <= maxNumClasses; id++ {
			categories = append(categories, Category{ID: id, Name: fmt.Sprintf("category_%d", id)})
		}
		return categories
	}

	seen := make(map[int]bool, len(lm.Items))
	for _, item := range lm.Items {
		if item.ID < 1 || item.ID > maxNumClasses {
			log.WithFields(logrus.Fields{"id": item.ID, "name": item.Name}).
				Debug("ignoring label map item outside of the requested class range")
			continue
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		name := item.Name
		if useDisplayName && item.DisplayName != "" {
			name = item.DisplayName
		}
		categories = append(categories, Category{ID: item.ID, Name: name})
	}

	return categories
}

// CategoryIndex maps a class id to its category. It is built once and only read afterwards.
type CategoryIndex struct {
	byID map[int]Category
}

// NewCategoryIndex builds the index from a list of categories.
func NewCategoryIndex(categories []Category) CategoryIndex {
	idx := CategoryIndex{byID: make(map[int]Category, len(categories))}
	for _, c := range categories {
		idx.byID[c.ID] = c
	}
	return idx
}

// Lookup returns the category for id.
func (c CategoryIndex) Lookup(id int) (Category, bool) {
	cat, ok := c.byID[id]
	return cat, ok
}

// Len returns the number of categories.
func (c CategoryIndex) Len() int {
	return len(c.byID)
}

// IDs returns every class id in ascending order.
func (c CategoryIndex) IDs() []int {
	ids := make([]int, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Build loads a label map and produces its category index in one step.
//
// Arguments:
//   - path: The label map file.
//   - maxNumClasses: The highest class id to keep.
//   - useDisplayName: Prefer display_name over name.
//   - log: Logger for skipped items; may be nil.
//
// Returns:
//   - CategoryIndex: The index.
//   - error: An error if the label map cannot be loaded.
func Build(path string, maxNumClasses int, useDisplayName bool, log logrus.FieldLogger) (CategoryIndex, error) {
	lm, err := Load(path)
	if err != nil {
		return CategoryIndex{}, err
	}
	return NewCategoryIndex(ConvertToCategories(lm, maxNumClasses, useDisplayName, log)), nil
}
