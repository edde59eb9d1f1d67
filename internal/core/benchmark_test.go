package core

import (
	"errors"
	"fmt"
	"testing"
)

// ============================================================================
// Column Kind Benchmarks
// ============================================================================

// BenchmarkInferColumnKind_Amounts benchmarks the decorated amounts bank
// exports produce. Every inspection classifies each header.
func BenchmarkInferColumnKind_Amounts(b *testing.B) {
	values := []string{
		"123",
		"-456.78",
		"$1,234.56",
		"(123.45)",     // Accounting negative
		"1,234,567.89", // Thousands separators
		"  999.99  ",   // Whitespace
		"€1234.56",     // Euro
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InferColumnKind(values)
	}
}

// BenchmarkInferColumnKind_Dates benchmarks date detection, which falls
// through the amount check first.
func BenchmarkInferColumnKind_Dates(b *testing.B) {
	values := []string{
		"2024-01-15",   // ISO format
		"01/15/2024",   // US format
		"Jan 15, 2024", // Text month
		"15.01.2024",   // European
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InferColumnKind(values)
	}
}

// BenchmarkInferColumnKind_Text benchmarks the worst case: every layout is
// tried before a value is classified as text.
func BenchmarkInferColumnKind_Text(b *testing.B) {
	values := []string{"Coffee shop", "Rent", "Salary ACME Corp", "Transfer to savings"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		InferColumnKind(values)
	}
}

// BenchmarkColumnKinds_Wide benchmarks a wide export with many columns.
func BenchmarkColumnKinds_Wide(b *testing.B) {
	headers, samples := wideInspection(60)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ColumnKinds(headers, samples)
	}
}

// ============================================================================
// Mapping Benchmarks
// ============================================================================

func BenchmarkToggleColumn(b *testing.B) {
	m := NewColumnMapping()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m = ToggleColumn(m, FieldName, "Description")
	}
}

func BenchmarkSerializeJSON(b *testing.B) {
	m := NewColumnMapping()
	m = ToggleColumn(m, FieldOccurredAt, "Date")
	m = ToggleColumn(m, FieldName, "Payee")
	m = ToggleColumn(m, FieldName, "Memo")
	m = ToggleColumn(m, FieldCategory, "Category")
	m = ToggleColumn(m, FieldAmount, "Amount")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Serialize(m).JSON(); err != nil {
			b.Fatal(err)
		}
	}
}

// ============================================================================
// Session Benchmarks
// ============================================================================

// BenchmarkSnapshot_Wide benchmarks the snapshot every page render takes.
func BenchmarkSnapshot_Wide(b *testing.B) {
	headers, samples := wideInspection(60)
	s := NewSession()
	gen, err := s.BeginInspection(File{Name: "wide.csv", Data: []byte("x")})
	if err != nil {
		b.Fatal(err)
	}
	s.CompleteInspection(gen, Inspection{Headers: headers, Samples: samples})

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		snapshotOf("bench", s, nil)
	}
}

// ============================================================================
// Error Mapping Benchmarks
// ============================================================================

// BenchmarkMapError benchmarks pattern matching across the error table,
// including the ERR000 fallback that scans every pattern.
func BenchmarkMapError(b *testing.B) {
	errs := []error{
		&StateError{Op: "submit", Status: StatusImporting},
		&InspectionError{Message: "Empty CSV file"},
		&ServiceError{Service: "import", Message: "connection refused"},
		errors.New("something nobody anticipated"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, err := range errs {
			MapError(err)
		}
	}
}

// ============================================================================
// Parallel Benchmarks
// ============================================================================

// BenchmarkRegistryOpenParallel benchmarks session lookup under contention.
func BenchmarkRegistryOpenParallel(b *testing.B) {
	r := NewRegistry(&fakeBackend{}, WorkflowOptions{})
	ids := make([]string, 64)
	for i := range ids {
		w, _ := r.Open("")
		ids[i] = w.ID()
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			r.Open(ids[i%len(ids)])
			i++
		}
	})
}

func BenchmarkInferColumnKindParallel(b *testing.B) {
	values := []string{"$1,234.56", "(123.45)", "-3.50"}

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			InferColumnKind(values)
		}
	})
}

func wideInspection(cols int) ([]string, map[string][]string) {
	headers := make([]string, cols)
	samples := make(map[string][]string, cols)
	for i := range headers {
		h := fmt.Sprintf("Column %d", i)
		headers[i] = h
		switch i % 3 {
		case 0:
			samples[h] = []string{"2024-01-02", "2024-01-03", "2024-01-04"}
		case 1:
			samples[h] = []string{"1,234.56", "-3.50", "(12.00)"}
		default:
			samples[h] = []string{"Coffee", "Rent", "Salary"}
		}
	}
	return headers, samples
}
