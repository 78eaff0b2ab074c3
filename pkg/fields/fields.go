// Package fields declares the diffable fields of the client record: their
// order, labels, criticality, and how relational fields map onto dependent
// tables. The diff walks this registry so change lists come out in a stable
// order regardless of extractor key order.
package fields

// Kind describes how a field is stored and diffed.
type Kind int

const (
	// KindScalar is a single column on the client row.
	KindScalar Kind = iota
	// KindList is an additive scalar list governed by the list merge policy.
	KindList
	// KindObject is a single dependent row diffed as one element map.
	KindObject
	// KindCollection is a dependent table diffed as an array of element maps.
	KindCollection
)

// Field is one entry of the registry.
type Field struct {
	Name     string
	Label    string
	Kind     Kind
	Critical bool
	// Category is the holdings table discriminator for collections stored
	// there; empty for collections with a dedicated table.
	Category string
	// NaturalKey is the element key used to match incoming items without an
	// id against existing rows.
	NaturalKey string
}

// IsRelational reports whether the field's value is element-structured.
func (f Field) IsRelational() bool {
	return f.Kind == KindObject || f.Kind == KindCollection
}

// Registry lists every diffable field in presentation order.
var Registry = []Field{
	{Name: "civility", Label: "Civility", Kind: KindScalar},
	{Name: "first_name", Label: "First name", Kind: KindScalar},
	{Name: "last_name", Label: "Last name", Kind: KindScalar},
	{Name: "email", Label: "Email", Kind: KindScalar, Critical: true},
	{Name: "phone", Label: "Phone", Kind: KindScalar, Critical: true},
	{Name: "address", Label: "Address", Kind: KindScalar, Critical: true},
	{Name: "postal_code", Label: "Postal code", Kind: KindScalar, Critical: true},
	{Name: "city", Label: "City", Kind: KindScalar, Critical: true},
	{Name: "birth_date", Label: "Birth date", Kind: KindScalar, Critical: true},
	{Name: "marital_status", Label: "Marital status", Kind: KindScalar, Critical: true},
	{Name: "profession", Label: "Profession", Kind: KindScalar},
	{Name: "annual_income", Label: "Annual income", Kind: KindScalar, Critical: true},
	{Name: "needs", Label: "Needs", Kind: KindList},
	{Name: "spouse", Label: "Spouse", Kind: KindObject},
	{Name: "dependents", Label: "Dependents", Kind: KindCollection, NaturalKey: "first_name"},
	{Name: "income_lines", Label: "Income", Kind: KindCollection, Category: "income_lines", NaturalKey: "kind"},
	{Name: "liabilities", Label: "Liabilities", Kind: KindCollection, Category: "liabilities", NaturalKey: "kind"},
	{Name: "financial_assets", Label: "Financial assets", Kind: KindCollection, Category: "financial_assets", NaturalKey: "kind"},
	{Name: "property_assets", Label: "Property", Kind: KindCollection, Category: "property_assets", NaturalKey: "kind"},
	{Name: "other_savings", Label: "Other savings", Kind: KindCollection, Category: "other_savings", NaturalKey: "kind"},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, len(Registry))
	for _, f := range Registry {
		m[f.Name] = f
	}
	return m
}()

// ByName looks a field up by name.
func ByName(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

// IsCritical reports whether a field is on the critical allow-list.
func IsCritical(name string) bool {
	f, ok := byName[name]
	return ok && f.Critical
}

// HoldingCategories returns the fields backed by the holdings table, keyed
// by field name.
func HoldingCategories() map[string]Field {
	m := make(map[string]Field)
	for _, f := range Registry {
		if f.Kind == KindCollection && f.Category != "" {
			m[f.Name] = f
		}
	}
	return m
}
