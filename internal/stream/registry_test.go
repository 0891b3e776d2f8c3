package stream

import (
	"testing"
	"time"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	older := &Session{ID: "b", CreatedAt: time.Unix(10, 0)}
	newer := &Session{ID: "a", CreatedAt: time.Unix(20, 0)}

	if !r.Add(newer) || !r.Add(older) {
		t.Fatal("Add() rejected a new id")
	}
	if r.Add(&Session{ID: "a"}) {
		t.Error("Add() accepted a duplicate id")
	}
	if got, ok := r.Get("a"); !ok || got != newer {
		t.Errorf("Get(a) = %v, %v", got, ok)
	}

	all := r.All()
	if len(all) != 2 || all[0] != older || all[1] != newer {
		t.Errorf("All() not ordered by creation: %v", all)
	}

	if !r.SetActive("a") {
		t.Fatal("SetActive(a) = false")
	}
	if r.SetActive("zzz") {
		t.Error("SetActive() accepted an unknown id")
	}
	if got, ok := r.Active(); !ok || got != newer {
		t.Errorf("Active() = %v, %v", got, ok)
	}

	if _, ok := r.Remove("a"); !ok {
		t.Fatal("Remove(a) = false")
	}
	if _, ok := r.Active(); ok {
		t.Error("removed session is still active")
	}
	if _, ok := r.Remove("a"); ok {
		t.Error("Remove() succeeded twice")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d", r.Len())
	}
}
