package dates

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "iso date", in: "2026-11-02", want: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)},
		{name: "iso minutes", in: "2026-11-02 09:15", want: time.Date(2026, 11, 2, 9, 15, 0, 0, time.UTC)},
		{name: "rfc3339", in: "2026-11-02T09:15:00Z", want: time.Date(2026, 11, 2, 9, 15, 0, 0, time.UTC)},
		{name: "padded", in: "  2026-11-02  ", want: time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)},
		{name: "empty", in: "", wantErr: true},
		{name: "nonsense", in: "whenever", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDayNaturalLanguage(t *testing.T) {
	now := time.Date(2026, 10, 14, 15, 30, 0, 0, time.UTC)

	got, err := ParseDay("tomorrow", now)
	if err != nil {
		t.Fatalf("ParseDay failed: %v", err)
	}
	if want := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("ParseDay(tomorrow) = %v, want %v", got, want)
	}

	got, err = ParseDay("next friday", now)
	if err != nil {
		t.Fatalf("ParseDay failed: %v", err)
	}
	if got.Weekday() != time.Friday || !got.After(now) {
		t.Errorf("ParseDay(next friday) = %v", got)
	}
}

func TestUTCDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	in := time.Date(2026, 12, 1, 0, 0, 0, 0, tokyo)
	if got, want := UTCDay(in), time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("UTCDay(%v) = %v, want %v", in, got, want)
	}
}
