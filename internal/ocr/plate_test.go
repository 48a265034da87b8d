package ocr

import (
	"testing"

	"radar-ingest/internal/domain/capture"
)

func TestClassifyPlateValid(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantPlate string
		wantClass capture.PlateClass
	}{
		{"particular", "P123ABC", "P123ABC", capture.PlateParticular},
		{"moto", "M456DEF", "M456DEF", capture.PlateMoto},
		{"comercial", "C789GHI", "C789GHI", capture.PlateComercial},
		{"unknown leading letter", "X123ABC", "X123ABC", capture.PlateUnknown},
		{"lowercase with hyphens", "p-123-abc", "P123ABC", capture.PlateParticular},
		{"spaces stripped", " C 789 GHI ", "C789GHI", capture.PlateComercial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPlate(tt.input)
			if !got.Valid {
				t.Fatalf("ClassifyPlate(%q).Valid = false, want true", tt.input)
			}
			if got.Plate != tt.wantPlate {
				t.Errorf("Plate = %q, want %q", got.Plate, tt.wantPlate)
			}
			if got.Class != tt.wantClass {
				t.Errorf("Class = %q, want %q", got.Class, tt.wantClass)
			}
		})
	}
}

func TestClassifyPlateInvalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"no leading letter", "123ABC"},
		{"two leading letters", "PP123ABC"},
		{"too few digits", "P12ABC"},
		{"too many letters", "P123ABCD"},
		{"digits in suffix", "P123AB1"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPlate(tt.input)
			if got.Valid {
				t.Errorf("ClassifyPlate(%q).Valid = true, want false", tt.input)
			}
		})
	}
}
