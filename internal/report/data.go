package report

import (
	"context"
	"time"
)

// CellKind drives type-aware formatting in the generators (currency and date
// columns render differently in a spreadsheet than in delimited text).
type CellKind string

const (
	KindText     CellKind = "text"
	KindInteger  CellKind = "integer"
	KindNumber   CellKind = "number"
	KindCurrency CellKind = "currency"
	KindDate     CellKind = "date"
)

// Numeric reports whether the column participates in totals rows.
func (k CellKind) Numeric() bool {
	return k == KindInteger || k == KindNumber || k == KindCurrency
}

type Column struct {
	Title string
	Kind  CellKind
}

// Table is one detail section of a report: typed columns plus rows whose
// cells match the column kinds (time.Time for date, int64 for integer,
// float64 for number/currency, string otherwise).
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

// KPI is one entry of the flat summary map at the top of every bundle.
type KPI struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value any    `json:"value"`
	Kind  CellKind
}

type ChartSeries struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

type Chart struct {
	Type   string        `json:"type"` // bar | line | pie
	Title  string        `json:"title"`
	Labels []string      `json:"labels"`
	Series []ChartSeries `json:"series"`
}

// Bundle is the closed set of report data shapes, discriminated by template.
// Generators consume the generic Summary/Tables/Charts views; the concrete
// variants keep the typed record lists the provider fills in.
//
// The interface is sealed so a type switch over variants stays exhaustive.
type Bundle interface {
	Template() Template
	Summary() []KPI
	Tables() []Table
	Charts() []Chart

	sealed()
}

// DataProvider computes report content from the farm records. It is an
// external collaborator: the pipeline only ever calls it through this
// interface, one method per known template.
type DataProvider interface {
	FetchFinancial(ctx context.Context, params Parameters) (*FinancialBundle, error)
	FetchInventory(ctx context.Context, params Parameters) (*InventoryBundle, error)
	FetchReproductive(ctx context.Context, params Parameters) (*ReproductiveBundle, error)
	FetchHealth(ctx context.Context, params Parameters) (*HealthBundle, error)
}

type SaleRecord struct {
	Date      time.Time
	Buyer     string
	AnimalTag string
	WeightKg  float64
	Amount    float64
}

type ExpenseRecord struct {
	Date        time.Time
	Category    string
	Description string
	Amount      float64
}

type FinancialBundle struct {
	KPIs      []KPI
	Sales     []SaleRecord
	Expenses  []ExpenseRecord
	ChartData []Chart
}

func (b *FinancialBundle) Template() Template { return TemplateFinancial }
func (b *FinancialBundle) Summary() []KPI     { return b.KPIs }
func (b *FinancialBundle) Charts() []Chart    { return b.ChartData }
func (b *FinancialBundle) sealed()            {}

func (b *FinancialBundle) Tables() []Table {
	var tables []Table
	if len(b.Sales) > 0 {
		t := Table{
			Name: "Sales",
			Columns: []Column{
				{Title: "Date", Kind: KindDate},
				{Title: "Buyer", Kind: KindText},
				{Title: "Animal Tag", Kind: KindText},
				{Title: "Weight (kg)", Kind: KindNumber},
				{Title: "Amount", Kind: KindCurrency},
			},
		}
		for _, s := range b.Sales {
			t.Rows = append(t.Rows, []any{s.Date, s.Buyer, s.AnimalTag, s.WeightKg, s.Amount})
		}
		tables = append(tables, t)
	}
	if len(b.Expenses) > 0 {
		t := Table{
			Name: "Expenses",
			Columns: []Column{
				{Title: "Date", Kind: KindDate},
				{Title: "Category", Kind: KindText},
				{Title: "Description", Kind: KindText},
				{Title: "Amount", Kind: KindCurrency},
			},
		}
		for _, e := range b.Expenses {
			t.Rows = append(t.Rows, []any{e.Date, e.Category, e.Description, e.Amount})
		}
		tables = append(tables, t)
	}
	return tables
}

type AnimalRecord struct {
	Tag       string
	Species   string
	Breed     string
	Sex       string
	BirthDate time.Time
	Status    string
	WeightKg  float64
}

type InventoryBundle struct {
	KPIs      []KPI
	Animals   []AnimalRecord
	ChartData []Chart
}

func (b *InventoryBundle) Template() Template { return TemplateInventory }
func (b *InventoryBundle) Summary() []KPI     { return b.KPIs }
func (b *InventoryBundle) Charts() []Chart    { return b.ChartData }
func (b *InventoryBundle) sealed()            {}

func (b *InventoryBundle) Tables() []Table {
	if len(b.Animals) == 0 {
		return nil
	}
	t := Table{
		Name: "Animals",
		Columns: []Column{
			{Title: "Tag", Kind: KindText},
			{Title: "Species", Kind: KindText},
			{Title: "Breed", Kind: KindText},
			{Title: "Sex", Kind: KindText},
			{Title: "Birth Date", Kind: KindDate},
			{Title: "Status", Kind: KindText},
			{Title: "Weight (kg)", Kind: KindNumber},
		},
	}
	for _, a := range b.Animals {
		t.Rows = append(t.Rows, []any{a.Tag, a.Species, a.Breed, a.Sex, a.BirthDate, a.Status, a.WeightKg})
	}
	return []Table{t}
}

type BreedingRecord struct {
	Date        time.Time
	DamTag      string
	SireTag     string
	Method      string
	ExpectedDue time.Time
	Outcome     string
}

type ReproductiveBundle struct {
	KPIs      []KPI
	Breedings []BreedingRecord
	ChartData []Chart
}

func (b *ReproductiveBundle) Template() Template { return TemplateReproductive }
func (b *ReproductiveBundle) Summary() []KPI     { return b.KPIs }
func (b *ReproductiveBundle) Charts() []Chart    { return b.ChartData }
func (b *ReproductiveBundle) sealed()            {}

func (b *ReproductiveBundle) Tables() []Table {
	if len(b.Breedings) == 0 {
		return nil
	}
	t := Table{
		Name: "Breedings",
		Columns: []Column{
			{Title: "Date", Kind: KindDate},
			{Title: "Dam", Kind: KindText},
			{Title: "Sire", Kind: KindText},
			{Title: "Method", Kind: KindText},
			{Title: "Expected Due", Kind: KindDate},
			{Title: "Outcome", Kind: KindText},
		},
	}
	for _, r := range b.Breedings {
		t.Rows = append(t.Rows, []any{r.Date, r.DamTag, r.SireTag, r.Method, r.ExpectedDue, r.Outcome})
	}
	return []Table{t}
}

type HealthEventRecord struct {
	Date        time.Time
	AnimalTag   string
	EventType   string
	Description string
	Treatment   string
	Cost        float64
}

type HealthBundle struct {
	KPIs      []KPI
	Events    []HealthEventRecord
	ChartData []Chart
}

func (b *HealthBundle) Template() Template { return TemplateHealth }
func (b *HealthBundle) Summary() []KPI     { return b.KPIs }
func (b *HealthBundle) Charts() []Chart    { return b.ChartData }
func (b *HealthBundle) sealed()            {}

func (b *HealthBundle) Tables() []Table {
	if len(b.Events) == 0 {
		return nil
	}
	t := Table{
		Name: "Health Events",
		Columns: []Column{
			{Title: "Date", Kind: KindDate},
			{Title: "Animal Tag", Kind: KindText},
			{Title: "Event", Kind: KindText},
			{Title: "Description", Kind: KindText},
			{Title: "Treatment", Kind: KindText},
			{Title: "Cost", Kind: KindCurrency},
		},
	}
	for _, e := range b.Events {
		t.Rows = append(t.Rows, []any{e.Date, e.AnimalTag, e.EventType, e.Description, e.Treatment, e.Cost})
	}
	return []Table{t}
}

// EmptyBundle is the fallback substituted when no provider method matches
// the requested template: empty summary, no detail sections, no charts.
type EmptyBundle struct {
	Requested Template
}

func (b *EmptyBundle) Template() Template { return b.Requested }
func (b *EmptyBundle) Summary() []KPI     { return nil }
func (b *EmptyBundle) Tables() []Table    { return nil }
func (b *EmptyBundle) Charts() []Chart    { return nil }
func (b *EmptyBundle) sealed()            {}
