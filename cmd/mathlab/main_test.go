package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestParsePoints(t *testing.T) {
	points, err := parsePoints("0,1 1,3;2,5\t3, 7")
	if err != nil {
		t.Fatalf("parsePoints: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("got %d points, want 4", len(points))
	}
	if points[3].X != 3 || points[3].Y != 7 {
		t.Fatalf("last point = %+v, want {3 7}", points[3])
	}
}

func TestParsePointsSpacingAroundComma(t *testing.T) {
	for _, in := range []string{"3, 7", "3 ,7", "3 , 7", "3,\n7"} {
		points, err := parsePoints(in)
		if err != nil {
			t.Fatalf("parsePoints(%q): %v", in, err)
		}
		if len(points) != 1 || points[0].X != 3 || points[0].Y != 7 {
			t.Fatalf("parsePoints(%q) = %+v, want [{3 7}]", in, points)
		}
	}
	points, err := parsePoints("-1, 0.5; 2 ,-3")
	if err != nil {
		t.Fatalf("parsePoints: %v", err)
	}
	if len(points) != 2 || points[1].X != 2 || points[1].Y != -3 {
		t.Fatalf("unexpected points %+v", points)
	}
}

func TestParsePointsErrors(t *testing.T) {
	for _, in := range []string{"1", "a,1", "1,b", "1,2,3", "1,"} {
		if _, err := parsePoints(in); err == nil {
			t.Fatalf("parsePoints(%q) expected error", in)
		}
	}
}

func TestRunFitExactLine(t *testing.T) {
	var out bytes.Buffer
	if err := runFit([]string{"-points", "0,1 1,3 2,5", "-slope", "1"}, &out); err != nil {
		t.Fatalf("runFit: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "slope=2.0000 intercept=1.0000") {
		t.Fatalf("unexpected best fit output: %q", got)
	}
	if !strings.Contains(got, "candidate: slope=1.0000 intercept=0.0000") {
		t.Fatalf("missing candidate line: %q", got)
	}
}

func TestRunFitDegenerate(t *testing.T) {
	var out bytes.Buffer
	if err := runFit([]string{"-points", "1,0 1,2"}, &out); err != nil {
		t.Fatalf("runFit: %v", err)
	}
	if !strings.Contains(out.String(), "degenerate fit over 2 points: y = 1.0000") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunRequiresCommand(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("expected usage error")
	}
}
