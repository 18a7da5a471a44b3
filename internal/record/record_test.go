package record_test

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mnemod/mnemod/internal/record"
)

func TestTierRank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tier record.Tier
		want int
	}{
		{record.Tier1, 1},
		{record.Tier2, 2},
		{record.Tier3, 3},
		{record.Tier("bogus"), 4},
	}

	for _, tt := range tests {
		if got := tt.tier.Rank(); got != tt.want {
			t.Errorf("Rank(%q) = %d, want %d", tt.tier, got, tt.want)
		}
	}
}

func TestParseTier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    record.Tier
		wantErr bool
	}{
		{"tier1", record.Tier1, false},
		{"TIER2", record.Tier2, false},
		{"  tier3 ", record.Tier3, false},
		{"tier4", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := record.ParseTier(tt.in)
		if tt.wantErr {
			if !errors.Is(err, record.ErrInvalidTier) {
				t.Errorf("ParseTier(%q) error = %v, want ErrInvalidTier", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTier(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestUpgradeNeverDowngrades(t *testing.T) {
	t.Parallel()

	tests := []struct {
		current, candidate, want record.Tier
	}{
		{record.Tier3, record.Tier1, record.Tier1},
		{record.Tier3, record.Tier2, record.Tier2},
		{record.Tier1, record.Tier3, record.Tier1},
		{record.Tier2, record.Tier2, record.Tier2},
		{record.Tier2, record.Tier(""), record.Tier2},
	}

	for _, tt := range tests {
		if got := record.Upgrade(tt.current, tt.candidate); got != tt.want {
			t.Errorf("Upgrade(%q, %q) = %q, want %q", tt.current, tt.candidate, got, tt.want)
		}
	}
}

func TestMergeThread(t *testing.T) {
	t.Parallel()

	r := &record.Record{UserID: "u1"}

	if !r.MergeThread("t-b") {
		t.Fatal("MergeThread(t-b) = false on first observation, want true")
	}
	if !r.MergeThread("t-a") {
		t.Fatal("MergeThread(t-a) = false on first observation, want true")
	}
	if r.MergeThread("t-b") {
		t.Fatal("MergeThread(t-b) = true on repeat observation, want false")
	}
	if r.MergeThread("") {
		t.Fatal("MergeThread(\"\") = true, want false")
	}

	if r.Repeats != 2 {
		t.Fatalf("Repeats = %d, want 2", r.Repeats)
	}
	if len(r.ThreadSet) != 2 || r.ThreadSet[0] != "t-a" || r.ThreadSet[1] != "t-b" {
		t.Fatalf("ThreadSet = %v, want sorted [t-a t-b]", r.ThreadSet)
	}
}

func TestTruncateContent(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("héllo ", 300) // well over the cap, multi-byte runes
	got := record.TruncateContent(long, 0)

	if n := utf8.RuneCountInString(got); n != record.MaxContentLen {
		t.Fatalf("truncated rune count = %d, want %d", n, record.MaxContentLen)
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("truncated content missing ellipsis marker: %q", got[len(got)-12:])
	}

	short := "stays as is"
	if got := record.TruncateContent(short, 0); got != short {
		t.Fatalf("TruncateContent(short) = %q, want unchanged", got)
	}
}

func TestValidateNew(t *testing.T) {
	t.Parallel()

	valid := func() *record.Record {
		return &record.Record{
			UserID:     "u1",
			Content:    "prefers dark mode",
			Tier:       record.Tier3,
			Priority:   0.5,
			Confidence: 0.6,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*record.Record)
		wantErr error
	}{
		{"valid", func(r *record.Record) {}, nil},
		{"missing user", func(r *record.Record) { r.UserID = "" }, record.ErrMissingUser},
		{"empty content", func(r *record.Record) { r.Content = "   " }, record.ErrEmptyContent},
		{"bad tier", func(r *record.Record) { r.Tier = "gold" }, record.ErrInvalidTier},
		{"priority high", func(r *record.Record) { r.Priority = 1.2 }, record.ErrPriorityRange},
		{"priority low", func(r *record.Record) { r.Priority = -0.1 }, record.ErrPriorityRange},
		{"confidence high", func(r *record.Record) { r.Confidence = 7 }, record.ErrConfidenceRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := valid()
			tt.mutate(r)
			if err := record.ValidateNew(r); !errors.Is(err, tt.wantErr) {
				t.Fatalf("ValidateNew() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	orig := &record.Record{
		UserID:       "u1",
		Content:      "original",
		ThreadSet:    []string{"t1", "t2"},
		RedactionMap: map[string]string{"[EMAIL_REDACTED]": "a@b.co"},
	}

	cp := orig.Clone()
	cp.ThreadSet[0] = "mutated"
	cp.RedactionMap["[EMAIL_REDACTED]"] = "mutated"

	if orig.ThreadSet[0] != "t1" {
		t.Fatal("Clone shares ThreadSet backing array with original")
	}
	if orig.RedactionMap["[EMAIL_REDACTED]"] != "a@b.co" {
		t.Fatal("Clone shares RedactionMap with original")
	}
}
