// v0
// reading_test.go
package sensor

import (
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	tick := time.Now()
	stale := 3 * time.Second
	fresh := Reading{Reactor: "R1", PH: 7.2, DO: 6.5, Timestamp: tick.Add(-time.Second), Valid: true}

	t.Run("fresh in-range reading stays valid", func(t *testing.T) {
		got := Validate(fresh, tick, stale)
		if !got.Valid || got.Reason != ReasonNone {
			t.Fatalf("expected valid, got %+v", got)
		}
	})
	t.Run("old reading goes stale regardless of flag", func(t *testing.T) {
		r := fresh
		r.Timestamp = tick.Add(-5 * time.Second)
		got := Validate(r, tick, stale)
		if got.Valid || got.Reason != ReasonStale {
			t.Fatalf("expected stale, got %+v", got)
		}
	})
	t.Run("implausible pH rejected", func(t *testing.T) {
		for _, ph := range []float64{-0.1, 14.5} {
			r := fresh
			r.PH = ph
			got := Validate(r, tick, stale)
			if got.Valid || got.Reason != ReasonRange {
				t.Fatalf("pH %.1f: expected out-of-range, got %+v", ph, got)
			}
		}
	})
	t.Run("parse failure carried through", func(t *testing.T) {
		got := Validate(Invalid("R1", ReasonParse), tick, stale)
		if got.Valid || got.Reason != ReasonParse {
			t.Fatalf("expected parse failure preserved, got %+v", got)
		}
	})
	t.Run("boundary age is still fresh", func(t *testing.T) {
		r := fresh
		r.Timestamp = tick.Add(-stale)
		if got := Validate(r, tick, stale); !got.Valid {
			t.Fatalf("reading exactly at staleness boundary must be valid, got %+v", got)
		}
	})
}

func TestParseMM44Line(t *testing.T) {
	t.Run("typical frame", func(t *testing.T) {
		got := ParseMM44Line("C1;PH;7.02;C2;DO;6.55;C3;PH;7.31")
		if len(got) != 3 {
			t.Fatalf("expected 3 channels, got %d", len(got))
		}
		if cv := got["C1"]; cv.Type != "pH" || !cv.OK || cv.Value != 7.02 {
			t.Fatalf("C1: %+v", cv)
		}
		if cv := got["C2"]; cv.Type != "DO" || cv.Value != 6.55 {
			t.Fatalf("C2: %+v", cv)
		}
	})
	t.Run("OD alias maps to DO", func(t *testing.T) {
		got := ParseMM44Line("C4;OD;5.10")
		if cv := got["C4"]; cv.Type != "DO" || !cv.OK {
			t.Fatalf("C4: %+v", cv)
		}
	})
	t.Run("malformed number kept with OK false", func(t *testing.T) {
		got := ParseMM44Line("C1;PH;??")
		cv, present := got["C1"]
		if !present || cv.OK {
			t.Fatalf("expected parse-failed channel retained: %+v", got)
		}
	})
	t.Run("junk tokens ignored", func(t *testing.T) {
		got := ParseMM44Line("garbage;;C1;PH;7.00;trailing")
		if len(got) != 1 || !got["C1"].OK {
			t.Fatalf("got %+v", got)
		}
	})
	t.Run("lowercase channel accepted", func(t *testing.T) {
		got := ParseMM44Line("c2;ph;6.90")
		if cv := got["C2"]; cv.Type != "pH" || cv.Value != 6.90 {
			t.Fatalf("got %+v", got)
		}
	})
	t.Run("empty line", func(t *testing.T) {
		if got := ParseMM44Line(""); len(got) != 0 {
			t.Fatalf("expected empty map, got %+v", got)
		}
	})
}
