package schema

import "strings"

// Product is a sellable catalog item.
var Product = Entity{
	Name:   "product",
	Plural: "products",
	Table:  "catalog_products",
	Key:    "sku",
	Fields: []FieldSpec{
		{Name: "sku", Type: FieldText, Required: true, Normalizer: strings.ToUpper},
		{Name: "name", Type: FieldText, Required: true, Searchable: true},
		{Name: "category", Type: FieldText, Searchable: true},
		{Name: "price", Type: FieldNumeric, Required: true},
		{Name: "status", Type: FieldEnum, EnumValues: []string{"active", "draft", "archived"}, Normalizer: strings.ToLower},
		{Name: "in_stock", Type: FieldBool},
		{Name: "available_from", Type: FieldDate},
		{Name: "description", Type: FieldText, Searchable: true},
	},
}

// Category groups products. Parent refers to another category's slug.
var Category = Entity{
	Name:   "category",
	Plural: "categories",
	Table:  "catalog_categories",
	Key:    "slug",
	Fields: []FieldSpec{
		{Name: "slug", Type: FieldText, Required: true, Normalizer: strings.ToLower},
		{Name: "name", Type: FieldText, Required: true, Searchable: true},
		{Name: "parent", Type: FieldText, Normalizer: strings.ToLower},
		{Name: "position", Type: FieldNumeric},
		{Name: "visible", Type: FieldBool},
		{Name: "description", Type: FieldText, Searchable: true},
	},
}
