package store

import (
	"math"
	"testing"
)

func TestStoreLink_Validation(t *testing.T) {
	s := newTestStore(t)

	if err := s.StoreLink("", "related_to", "deduction", 1.0, nil); err == nil {
		t.Error("expected error for empty entity")
	}
	if err := s.StoreLink("Form 1040", "", "deduction", 1.0, nil); err == nil {
		t.Error("expected error for empty relation")
	}
}

func TestQueryLinks_Directions(t *testing.T) {
	s := newTestStore(t)

	mustLink := func(a, rel, b string) {
		t.Helper()
		if err := s.StoreLink(a, rel, b, 1.0, nil); err != nil {
			t.Fatalf("StoreLink failed: %v", err)
		}
	}
	mustLink("Form 1040", "mentioned_in", "scenario1.txt")
	mustLink("standard deduction", "related_to", "Form 1040")

	out, err := s.QueryLinks("Form 1040", "outgoing")
	if err != nil {
		t.Fatalf("QueryLinks failed: %v", err)
	}
	if len(out) != 1 || out[0].EntityB != "scenario1.txt" {
		t.Errorf("outgoing links = %+v", out)
	}

	in, err := s.QueryLinks("Form 1040", "incoming")
	if err != nil {
		t.Fatal(err)
	}
	if len(in) != 1 || in[0].EntityA != "standard deduction" {
		t.Errorf("incoming links = %+v", in)
	}

	both, err := s.QueryLinks("Form 1040", "both")
	if err != nil {
		t.Fatal(err)
	}
	if len(both) != 2 {
		t.Errorf("expected 2 links in both directions, got %d", len(both))
	}
}

func TestStoreLink_UpsertKeepsOneRow(t *testing.T) {
	s := newTestStore(t)

	s.StoreLink("credit", "related_to", "dependent", 1.0, nil)
	s.StoreLink("credit", "related_to", "dependent", 2.5, nil)

	links, err := s.QueryLinks("credit", "outgoing")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link after upsert, got %d", len(links))
	}
	if links[0].Weight != 2.5 {
		t.Errorf("weight = %v, want 2.5", links[0].Weight)
	}
}

func TestIncrementLink_AccumulatesWeight(t *testing.T) {
	s := newTestStore(t)

	s.IncrementLink("1040", "related_to", "standard", 1.0, nil)
	s.IncrementLink("1040", "related_to", "standard", 1.0, nil)
	s.IncrementLink("1040", "related_to", "standard", 1.0, nil)

	links, err := s.QueryLinks("1040", "outgoing")
	if err != nil {
		t.Fatal(err)
	}
	if len(links) != 1 {
		t.Fatalf("expected 1 link after increments, got %d", len(links))
	}
	if links[0].Weight != 3.0 {
		t.Errorf("weight = %v, want 3", links[0].Weight)
	}
}

func TestIncrementLink_Validation(t *testing.T) {
	s := newTestStore(t)

	if err := s.IncrementLink("", "related_to", "deduction", 1.0, nil); err == nil {
		t.Error("expected error for empty entity")
	}
	if err := s.IncrementLink("a", "related_to", "b", math.NaN(), nil); err == nil {
		t.Error("expected error for NaN delta")
	}
}

func TestTraversePath(t *testing.T) {
	s := newTestStore(t)

	s.StoreLink("taxpayer", "claims", "child tax credit", 1.0, nil)
	s.StoreLink("child tax credit", "reported_on", "Form 1040", 1.0, nil)
	s.StoreLink("Form 1040", "mentioned_in", "scenario1.txt", 1.0, nil)

	path, err := s.TraversePath("taxpayer", "scenario1.txt", 5)
	if err != nil {
		t.Fatalf("TraversePath failed: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected 3 hops, got %d", len(path))
	}
	if path[0].EntityA != "taxpayer" || path[2].EntityB != "scenario1.txt" {
		t.Errorf("path endpoints wrong: %+v", path)
	}
}

func TestTraversePath_NoPath(t *testing.T) {
	s := newTestStore(t)

	s.StoreLink("a", "related_to", "b", 1.0, nil)
	s.StoreLink("c", "related_to", "d", 1.0, nil)

	if _, err := s.TraversePath("a", "d", 5); err == nil {
		t.Error("expected error for disconnected entities")
	}
}

func TestTraversePath_RespectsMaxDepth(t *testing.T) {
	s := newTestStore(t)

	s.StoreLink("a", "r", "b", 1.0, nil)
	s.StoreLink("b", "r", "c", 1.0, nil)
	s.StoreLink("c", "r", "d", 1.0, nil)

	if _, err := s.TraversePath("a", "d", 2); err == nil {
		t.Error("expected no path within depth 2")
	}
	if _, err := s.TraversePath("a", "d", 3); err != nil {
		t.Errorf("expected path within depth 3: %v", err)
	}
}

func TestEntities(t *testing.T) {
	s := newTestStore(t)

	s.StoreLink("Form 8863", "related_to", "education credit", 1.0, nil)

	entities, err := s.Entities()
	if err != nil {
		t.Fatal(err)
	}
	if len(entities) != 2 {
		t.Errorf("expected 2 entities, got %d: %v", len(entities), entities)
	}
}
