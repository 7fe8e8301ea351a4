// Package curation implements schema validation of raw record batches and
// partition-safe merging into the curated tables.
package curation

// Kind is the declared type of a schema column.
type Kind string

const (
	KindString Kind = "string"
	KindFloat  Kind = "float"
	KindInt    Kind = "int"
	KindDate   Kind = "date" // YYYY-MM-DD
	KindTime   Kind = "time" // RFC3339
)

// ColumnRule declares the validation rules for one column.
type ColumnRule struct {
	Kind     Kind
	Nullable bool
	Min      *float64 // inclusive lower bound for numeric kinds
	Max      *float64 // inclusive upper bound for numeric kinds
}

// Schema declares the expected shape of a raw batch: every declared column
// must be present in the batch header or the batch is structurally invalid.
type Schema struct {
	Name    string
	Columns map[string]ColumnRule
}

// RawBatch is a batch of rows exactly as handed over by an ingestion
// collaborator: a header plus generic cell values per row.
type RawBatch struct {
	Name    string
	Columns []string
	Rows    []map[string]interface{}
}

// HasColumn reports whether the batch header declares the column.
func (b RawBatch) HasColumn(name string) bool {
	for _, c := range b.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func floatPtr(v float64) *float64 { return &v }

// PriceSchema returns the schema for daily price batches.
func PriceSchema() Schema {
	return Schema{
		Name: "daily_prices",
		Columns: map[string]ColumnRule{
			"ticker":    {Kind: KindString},
			"date":      {Kind: KindDate},
			"open":      {Kind: KindFloat, Min: floatPtr(0)},
			"high":      {Kind: KindFloat, Min: floatPtr(0)},
			"low":       {Kind: KindFloat, Min: floatPtr(0)},
			"close":     {Kind: KindFloat},
			"adj_close": {Kind: KindFloat, Nullable: true, Min: floatPtr(0)},
			"volume":    {Kind: KindInt, Nullable: true},
			"source":    {Kind: KindString, Nullable: true},
		},
	}
}

// FundamentalSchema returns the schema for quarterly fundamental batches.
func FundamentalSchema() Schema {
	return Schema{
		Name: "quarterly_fundamentals",
		Columns: map[string]ColumnRule{
			"ticker":     {Kind: KindString},
			"year":       {Kind: KindInt, Min: floatPtr(1900), Max: floatPtr(2200)},
			"quarter":    {Kind: KindInt, Min: floatPtr(1), Max: floatPtr(4)},
			"revenue":    {Kind: KindFloat},
			"net_income": {Kind: KindFloat, Nullable: true},
			"eps":        {Kind: KindFloat, Nullable: true},
			"filed_at":   {Kind: KindTime},
			"source":     {Kind: KindString, Nullable: true},
		},
	}
}
