package tables

import (
	"reflect"
	"strings"
	"testing"

	"github.com/fin360/financial-analyzer/internal/domain"
)

func TestExtractWithHeaders(t *testing.T) {
	text := strings.Join([]string{
		"Some narrative text.",
		"",
		"| Metric | FY23 | FY24 |",
		"|--------|------|------|",
		"| Revenue | 100 | 110 |",
		"| EBITDA | 20 | 25 |",
		"",
		"More narrative.",
	}, "\n")

	got := Extract(text)
	if len(got) != 1 {
		t.Fatalf("tables = %d, want 1", len(got))
	}
	want := domain.Table{
		Headers: []string{"Metric", "FY23", "FY24"},
		Rows: [][]string{
			{"Revenue", "100", "110"},
			{"EBITDA", "20", "25"},
		},
	}
	if !reflect.DeepEqual(got[0], want) {
		t.Fatalf("table = %+v, want %+v", got[0], want)
	}
}

func TestExtractWithoutHeaders(t *testing.T) {
	text := "| Cash | 50 |\n| Debt | 30 |\n"

	got := Extract(text)
	if len(got) != 1 {
		t.Fatalf("tables = %d, want 1", len(got))
	}
	if got[0].Headers != nil {
		t.Fatalf("headers = %v, want nil", got[0].Headers)
	}
	if len(got[0].Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(got[0].Rows))
	}
}

func TestExtractMultipleTables(t *testing.T) {
	text := strings.Join([]string{
		"| A | B |",
		"|---|---|",
		"| 1 | 2 |",
		"",
		"text between",
		"",
		"| C | D |",
		"|---|---|",
		"| 3 | 4 |",
	}, "\n")

	got := Extract(text)
	if len(got) != 2 {
		t.Fatalf("tables = %d, want 2", len(got))
	}
	if got[0].Headers[0] != "A" || got[1].Headers[0] != "C" {
		t.Fatalf("tables out of order: %+v", got)
	}
}

func TestExtractIgnoresSingleRows(t *testing.T) {
	if got := Extract("| lone row |\nplain text"); got != nil {
		t.Fatalf("Extract = %+v, want nil", got)
	}
}

func TestExtractNoTables(t *testing.T) {
	if got := Extract("Just prose.\nNothing tabular here."); got != nil {
		t.Fatalf("Extract = %+v, want nil", got)
	}
}

func TestRenderRoundTrip(t *testing.T) {
	in := domain.Table{
		Headers: []string{"Item", "Value"},
		Rows:    [][]string{{"Cash", "50"}},
	}
	back := Extract(Render(in))
	if len(back) != 1 || !reflect.DeepEqual(back[0], in) {
		t.Fatalf("round trip = %+v, want %+v", back, in)
	}
}

func TestSummarySection(t *testing.T) {
	analysis := "## ADJ EBITDA\n\n| Item | FY24 |\n|---|---|\n| EBITDA | 25 |\n"

	got := SummarySection(analysis)
	if !strings.HasPrefix(got, "## SUMMARY TABLES\n") {
		t.Fatalf("missing heading: %q", got)
	}
	if !strings.Contains(got, "| EBITDA | 25 |") {
		t.Fatalf("missing table row: %q", got)
	}
}

func TestSummarySectionEmpty(t *testing.T) {
	if got := SummarySection("no tables here"); got != "" {
		t.Fatalf("SummarySection = %q, want empty", got)
	}
}
