package referee

import (
	"strings"
	"testing"

	"github.com/park285/cheese-arena/internal/clock"
)

func TestJudgeFoolsMate(t *testing.T) {
	v, err := Judge([]string{"f2f3", "e7e5", "g2g4", "d8h4"})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if !v.Finished || v.Winner != clock.Black || v.Method != "checkmate" {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestJudgeAcceptsSAN(t *testing.T) {
	v, err := Judge([]string{"e4", "e5", "Qh5", "Nc6", "Bc4", "Nf6", "Qxf7#"})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if !v.Finished || v.Winner != clock.White {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestJudgeOngoing(t *testing.T) {
	v, err := Judge([]string{"e2e4"})
	if err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if v.Finished || !strings.Contains(v.FEN, " b ") {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestJudgeUnreplayable(t *testing.T) {
	if _, err := Judge([]string{"e2e4", "zz"}); err == nil {
		t.Fatalf("expected replay error")
	}
}

func TestSAN(t *testing.T) {
	san, err := SAN([]string{"e2e4", "e7e5", "g1f3"})
	if err != nil {
		t.Fatalf("SAN: %v", err)
	}
	want := []string{"e4", "e5", "Nf3"}
	for i := range want {
		if san[i] != want[i] {
			t.Fatalf("san = %v, want %v", san, want)
		}
	}
}
