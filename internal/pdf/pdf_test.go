package pdf

import (
	"errors"
	"reflect"
	"testing"

	"github.com/fin360/financial-analyzer/internal/domain"
)

func TestIsValidPDFRejectsNonPDF(t *testing.T) {
	for _, data := range [][]byte{nil, []byte(""), []byte("hello"), []byte("<html></html>")} {
		if IsValidPDF(data) {
			t.Errorf("IsValidPDF(%q) = true", data)
		}
	}
}

func TestValidatePages(t *testing.T) {
	tests := []struct {
		name      string
		pages     []int
		pageCount int
		wantErr   bool
	}{
		{"empty request", nil, 5, false},
		{"valid bounds", []int{0, 4}, 5, false},
		{"negative page", []int{-1}, 5, true},
		{"page equals count", []int{5}, 5, true},
		{"mixed valid and invalid", []int{0, 7}, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePages(tt.pages, tt.pageCount)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidatePages(%v, %d) error = %v, wantErr %v", tt.pages, tt.pageCount, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidPageRange) {
				t.Errorf("error kind = %v, want INVALID_PAGE_RANGE", domain.KindOf(err))
			}
		})
	}
}

func TestNormalizePages(t *testing.T) {
	if got := NormalizePages(nil, 3); !reflect.DeepEqual(got, []int{0, 1, 2}) {
		t.Errorf("NormalizePages(nil, 3) = %v", got)
	}
	if got := NormalizePages([]int{1}, 3); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("NormalizePages([1], 3) = %v", got)
	}
}
