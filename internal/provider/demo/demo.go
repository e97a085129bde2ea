// Package demo is a deterministic in-memory data provider. It stands in for
// the record-keeping backend so the export pipeline can run end to end
// without one: the sample herd below is fixed, only the date-range filter
// changes what a report contains.
package demo

import (
	"context"
	"time"

	"github.com/farmledger/export-api/internal/report"
)

type Provider struct {
	sales     []report.SaleRecord
	expenses  []report.ExpenseRecord
	animals   []report.AnimalRecord
	breedings []report.BreedingRecord
	events    []report.HealthEventRecord
}

func NewProvider() *Provider {
	return &Provider{
		sales:     sampleSales(),
		expenses:  sampleExpenses(),
		animals:   sampleAnimals(),
		breedings: sampleBreedings(),
		events:    sampleHealthEvents(),
	}
}

func (p *Provider) FetchFinancial(ctx context.Context, params report.Parameters) (*report.FinancialBundle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var sales []report.SaleRecord
	var salesTotal float64
	for _, s := range p.sales {
		if !inRange(s.Date, params.DateRange) {
			continue
		}
		sales = append(sales, s)
		salesTotal += s.Amount
	}

	var expenses []report.ExpenseRecord
	var expenseTotal float64
	byCategory := map[string]float64{}
	var categories []string
	for _, e := range p.expenses {
		if !inRange(e.Date, params.DateRange) {
			continue
		}
		expenses = append(expenses, e)
		expenseTotal += e.Amount
		if _, seen := byCategory[e.Category]; !seen {
			categories = append(categories, e.Category)
		}
		byCategory[e.Category] += e.Amount
	}

	b := &report.FinancialBundle{
		Sales:    sales,
		Expenses: expenses,
	}
	if len(sales) > 0 || len(expenses) > 0 {
		b.KPIs = []report.KPI{
			{Key: "totalSales", Label: "Total Sales", Value: salesTotal, Kind: report.KindCurrency},
			{Key: "totalExpenses", Label: "Total Expenses", Value: expenseTotal, Kind: report.KindCurrency},
			{Key: "netIncome", Label: "Net Income", Value: salesTotal - expenseTotal, Kind: report.KindCurrency},
			{Key: "saleCount", Label: "Number of Sales", Value: int64(len(sales)), Kind: report.KindInteger},
		}
	}
	if len(categories) > 0 {
		data := make([]float64, len(categories))
		for i, c := range categories {
			data[i] = byCategory[c]
		}
		b.ChartData = []report.Chart{{
			Type:   "bar",
			Title:  "Expenses by Category",
			Labels: categories,
			Series: []report.ChartSeries{{Name: "Amount", Data: data}},
		}}
	}
	return b, nil
}

func (p *Provider) FetchInventory(ctx context.Context, params report.Parameters) (*report.InventoryBundle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var animals []report.AnimalRecord
	bySpecies := map[string]float64{}
	var species []string
	active := int64(0)
	var totalWeight float64
	for _, a := range p.animals {
		if want := params.Filters["species"]; want != "" && a.Species != want {
			continue
		}
		animals = append(animals, a)
		if _, seen := bySpecies[a.Species]; !seen {
			species = append(species, a.Species)
		}
		bySpecies[a.Species]++
		if a.Status == "active" {
			active++
		}
		totalWeight += a.WeightKg
	}

	b := &report.InventoryBundle{Animals: animals}
	if len(animals) > 0 {
		b.KPIs = []report.KPI{
			{Key: "totalAnimals", Label: "Total Animals", Value: int64(len(animals)), Kind: report.KindInteger},
			{Key: "activeAnimals", Label: "Active Animals", Value: active, Kind: report.KindInteger},
			{Key: "avgWeight", Label: "Average Weight (kg)", Value: totalWeight / float64(len(animals)), Kind: report.KindNumber},
		}
		data := make([]float64, len(species))
		for i, s := range species {
			data[i] = bySpecies[s]
		}
		b.ChartData = []report.Chart{{
			Type:   "pie",
			Title:  "Herd by Species",
			Labels: species,
			Series: []report.ChartSeries{{Name: "Head", Data: data}},
		}}
	}
	return b, nil
}

func (p *Provider) FetchReproductive(ctx context.Context, params report.Parameters) (*report.ReproductiveBundle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var breedings []report.BreedingRecord
	confirmed := int64(0)
	for _, r := range p.breedings {
		if !inRange(r.Date, params.DateRange) {
			continue
		}
		breedings = append(breedings, r)
		if r.Outcome == "confirmed" {
			confirmed++
		}
	}

	b := &report.ReproductiveBundle{Breedings: breedings}
	if len(breedings) > 0 {
		rate := float64(confirmed) / float64(len(breedings)) * 100
		b.KPIs = []report.KPI{
			{Key: "breedings", Label: "Breedings", Value: int64(len(breedings)), Kind: report.KindInteger},
			{Key: "confirmed", Label: "Confirmed Pregnancies", Value: confirmed, Kind: report.KindInteger},
			{Key: "conceptionRate", Label: "Conception Rate (%)", Value: rate, Kind: report.KindNumber},
		}
	}
	return b, nil
}

func (p *Provider) FetchHealth(ctx context.Context, params report.Parameters) (*report.HealthBundle, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	var events []report.HealthEventRecord
	var totalCost float64
	byType := map[string]float64{}
	var types []string
	for _, e := range p.events {
		if !inRange(e.Date, params.DateRange) {
			continue
		}
		events = append(events, e)
		totalCost += e.Cost
		if _, seen := byType[e.EventType]; !seen {
			types = append(types, e.EventType)
		}
		byType[e.EventType]++
	}

	b := &report.HealthBundle{Events: events}
	if len(events) > 0 {
		b.KPIs = []report.KPI{
			{Key: "events", Label: "Health Events", Value: int64(len(events)), Kind: report.KindInteger},
			{Key: "treatmentCost", Label: "Treatment Cost", Value: totalCost, Kind: report.KindCurrency},
		}
		data := make([]float64, len(types))
		for i, t := range types {
			data[i] = byType[t]
		}
		b.ChartData = []report.Chart{{
			Type:   "bar",
			Title:  "Events by Type",
			Labels: types,
			Series: []report.ChartSeries{{Name: "Count", Data: data}},
		}}
	}
	return b, nil
}

// inRange applies the inclusive date-range filter; a nil range matches all.
func inRange(t time.Time, r *report.DateRange) bool {
	if r == nil {
		return true
	}
	if t.Before(r.From) {
		return false
	}
	// Inclusive upper bound at day granularity.
	return !t.After(r.To.Add(24*time.Hour - time.Nanosecond))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sampleSales() []report.SaleRecord {
	return []report.SaleRecord{
		{Date: day(2026, 1, 12), Buyer: "Hillside Meats", AnimalTag: "C-041", WeightKg: 512, Amount: 1840.00},
		{Date: day(2026, 2, 3), Buyer: "Valley Packers", AnimalTag: "C-027", WeightKg: 488, Amount: 1756.80},
		{Date: day(2026, 2, 19), Buyer: "Hillside Meats", AnimalTag: "C-033", WeightKg: 530, Amount: 1908.00},
		{Date: day(2026, 3, 7), Buyer: "Greenfield Co-op", AnimalTag: "S-112", WeightKg: 64, Amount: 288.00},
		{Date: day(2026, 4, 22), Buyer: "Valley Packers", AnimalTag: "C-045", WeightKg: 495, Amount: 1782.00},
	}
}

func sampleExpenses() []report.ExpenseRecord {
	return []report.ExpenseRecord{
		{Date: day(2026, 1, 5), Category: "Feed", Description: "Alfalfa hay, 8 bales", Amount: 420.00},
		{Date: day(2026, 1, 28), Category: "Veterinary", Description: "Herd vaccination round", Amount: 310.50},
		{Date: day(2026, 2, 14), Category: "Feed", Description: "Mineral supplement", Amount: 96.40},
		{Date: day(2026, 3, 2), Category: "Equipment", Description: "Water trough replacement", Amount: 189.99},
		{Date: day(2026, 3, 30), Category: "Feed", Description: "Silage top-up", Amount: 540.00},
		{Date: day(2026, 4, 11), Category: "Veterinary", Description: "Lameness treatment, C-027", Amount: 85.00},
	}
}

func sampleAnimals() []report.AnimalRecord {
	return []report.AnimalRecord{
		{Tag: "C-027", Species: "cattle", Breed: "Angus", Sex: "F", BirthDate: day(2023, 4, 2), Status: "active", WeightKg: 488},
		{Tag: "C-033", Species: "cattle", Breed: "Hereford", Sex: "M", BirthDate: day(2023, 7, 19), Status: "sold", WeightKg: 530},
		{Tag: "C-041", Species: "cattle", Breed: "Angus", Sex: "M", BirthDate: day(2024, 1, 8), Status: "sold", WeightKg: 512},
		{Tag: "C-045", Species: "cattle", Breed: "Simmental", Sex: "F", BirthDate: day(2024, 3, 25), Status: "active", WeightKg: 495},
		{Tag: "S-108", Species: "sheep", Breed: "Suffolk", Sex: "F", BirthDate: day(2024, 2, 14), Status: "active", WeightKg: 71},
		{Tag: "S-112", Species: "sheep", Breed: "Dorper", Sex: "M", BirthDate: day(2025, 1, 30), Status: "sold", WeightKg: 64},
		{Tag: "G-021", Species: "goat", Breed: "Boer", Sex: "F", BirthDate: day(2023, 11, 6), Status: "active", WeightKg: 58},
	}
}

func sampleBreedings() []report.BreedingRecord {
	return []report.BreedingRecord{
		{Date: day(2026, 1, 18), DamTag: "C-027", SireTag: "C-033", Method: "natural", ExpectedDue: day(2026, 10, 27), Outcome: "confirmed"},
		{Date: day(2026, 2, 9), DamTag: "C-045", SireTag: "AI-774", Method: "artificial", ExpectedDue: day(2026, 11, 18), Outcome: "confirmed"},
		{Date: day(2026, 3, 14), DamTag: "S-108", SireTag: "S-112", Method: "natural", ExpectedDue: day(2026, 8, 11), Outcome: "open"},
		{Date: day(2026, 4, 2), DamTag: "G-021", SireTag: "G-014", Method: "natural", ExpectedDue: day(2026, 8, 30), Outcome: "pending"},
	}
}

func sampleHealthEvents() []report.HealthEventRecord {
	return []report.HealthEventRecord{
		{Date: day(2026, 1, 28), AnimalTag: "C-027", EventType: "vaccination", Description: "Clostridial booster", Treatment: "Covexin 10", Cost: 12.50},
		{Date: day(2026, 1, 28), AnimalTag: "C-045", EventType: "vaccination", Description: "Clostridial booster", Treatment: "Covexin 10", Cost: 12.50},
		{Date: day(2026, 2, 21), AnimalTag: "S-108", EventType: "deworming", Description: "Routine drench", Treatment: "Ivermectin", Cost: 8.20},
		{Date: day(2026, 4, 11), AnimalTag: "C-027", EventType: "treatment", Description: "Mild lameness, left hind", Treatment: "Hoof trim + antibiotic", Cost: 85.00},
	}
}

var _ report.DataProvider = (*Provider)(nil)
