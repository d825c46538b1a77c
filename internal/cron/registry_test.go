package cron

import (
	"context"
	"testing"
)

type testJob struct {
	name string
	err  error
	runs int
}

func (j *testJob) Name() string { return j.name }

func (j *testJob) Run(_ context.Context) error {
	j.runs++
	return j.err
}

func TestRegistryStoresJobs(t *testing.T) {
	first := &testJob{name: "first"}
	second := &testJob{name: "second"}

	registry := NewRegistry(first, nil)
	registry.Register(second)
	registry.Register(nil)

	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Name() != "first" || jobs[1].Name() != "second" {
		t.Fatalf("unexpected job order: %s, %s", jobs[0].Name(), jobs[1].Name())
	}

	// Mutating the returned slice must not touch the registry's own list.
	jobs[0] = second
	if registry.Jobs()[0].Name() != "first" {
		t.Fatal("registry internal slice leaked")
	}
}
