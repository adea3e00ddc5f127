package sampler

import (
	"math/rand/v2"
	"slices"
	"testing"
)

// TestSamplerRoundTrip mirrors the original implementation's test_sampler:
// every job should see exactly the index set it registered with, once
// sampling has run to exhaustion, and never anything outside it.
func TestSamplerRoundTrip(t *testing.T) {
	const jobCount = 100
	tree := New()
	want := make(map[JobID]map[uint32]struct{}, jobCount)
	got := make(map[JobID]map[uint32]struct{}, jobCount)

	for id := JobID(0); id < jobCount; id++ {
		size := 1 + rand.IntN(1000)
		indices := make([]uint32, size)
		set := make(map[uint32]struct{}, size)
		for i := range indices {
			indices[i] = uint32(i)
			set[uint32(i)] = struct{}{}
		}
		want[id] = set
		got[id] = make(map[uint32]struct{})
		tree.Insert(id, indices)
	}

	for {
		res := tree.Sample(nil)
		if len(res) == 0 {
			break
		}
		for x, jobs := range res {
			for job := range jobs {
				got[job][x] = struct{}{}
			}
		}
	}

	for id, set := range want {
		if len(set) != len(got[id]) {
			t.Fatalf("job %d: got %d indices, want %d", id, len(got[id]), len(set))
		}
		for x := range set {
			if _, ok := got[id][x]; !ok {
				t.Fatalf("job %d: missing index %d", id, x)
			}
		}
	}
}

// TestInsertPreservesJobValues mirrors test_insert: after inserting
// several large jobs, each job's recorded values must match exactly what
// it was inserted with.
func TestInsertPreservesJobValues(t *testing.T) {
	tree := New()
	var allKeys [][]uint32
	for i := 0; i < 4; i++ {
		size := 1000 + rand.IntN(5000)
		keys := make([]uint32, size)
		for j := range keys {
			keys[j] = uint32(j)
		}
		allKeys = append(allKeys, keys)
		tree.Insert(JobID(i), keys)
	}

	for i, keys := range allKeys {
		values := tree.JobValues(JobID(i))
		slices.Sort(values)
		want := slices.Clone(keys)
		slices.Sort(want)
		if !slices.Equal(values, want) {
			t.Fatalf("job %d: values mismatch, got %d entries want %d", i, len(values), len(want))
		}
	}
}

// TestDeleteSampler mirrors test_delete_sampler: register twelve
// geometrically-sized jobs, delete three of them, then sample to
// exhaustion and check every surviving job sees exactly its own set.
func TestDeleteSampler(t *testing.T) {
	sizes := []int{2, 4, 8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096}
	deleted := map[JobID]struct{}{0: {}, 3: {}, 5: {}}

	tree := New()
	want := make(map[JobID]map[uint32]struct{})
	got := make(map[JobID]map[uint32]struct{})

	for id, size := range sizes {
		indices := make([]uint32, size)
		set := make(map[uint32]struct{}, size)
		for i := range indices {
			indices[i] = uint32(i)
			set[uint32(i)] = struct{}{}
		}
		tree.Insert(JobID(id), indices)
		if _, skip := deleted[JobID(id)]; !skip {
			want[JobID(id)] = set
			got[JobID(id)] = make(map[uint32]struct{})
		}
	}

	for id := range deleted {
		tree.Delete(id)
	}

	for {
		res := tree.Sample(nil)
		if len(res) == 0 {
			break
		}
		for x, jobs := range res {
			for job := range jobs {
				got[job][x] = struct{}{}
			}
		}
	}

	for id, set := range want {
		if len(set) != len(got[id]) {
			t.Fatalf("job %d: got %d indices, want %d", id, len(got[id]), len(set))
		}
		for x := range set {
			if _, ok := got[id][x]; !ok {
				t.Fatalf("job %d: missing index %d", id, x)
			}
		}
	}
}

// TestSampleSkipsMaskedJobsWithoutLosingDraws mirrors test_bm_mask:
// sampling with a non-empty skip set must never deliver an index to a
// masked job, and must never silently drop an index either — once the
// mask is lifted, every masked job still receives its full original set.
func TestSampleSkipsMaskedJobsWithoutLosingDraws(t *testing.T) {
	const jobCount = 8
	tree := New()
	want := make(map[JobID]map[uint32]struct{}, jobCount)
	got := make(map[JobID]map[uint32]struct{}, jobCount)

	for id := JobID(0); id < jobCount; id++ {
		size := 50 + rand.IntN(200)
		indices := make([]uint32, size)
		set := make(map[uint32]struct{}, size)
		for i := range indices {
			indices[i] = uint32(i)
			set[uint32(i)] = struct{}{}
		}
		want[id] = set
		got[id] = make(map[uint32]struct{})
		tree.Insert(id, indices)
	}

	skip := map[JobID]struct{}{1: {}, 2: {}, 3: {}}

	for {
		res := tree.Sample(skip)
		if len(res) == 0 {
			break
		}
		for x, jobs := range res {
			for job := range jobs {
				if _, masked := skip[job]; masked {
					t.Fatalf("masked job %d received index %d", job, x)
				}
				got[job][x] = struct{}{}
			}
		}
	}

	for id := range skip {
		if len(got[id]) != 0 {
			t.Fatalf("masked job %d got %d indices, want 0", id, len(got[id]))
		}
	}

	for {
		res := tree.Sample(nil)
		if len(res) == 0 {
			break
		}
		for x, jobs := range res {
			for job := range jobs {
				got[job][x] = struct{}{}
			}
		}
	}

	for id, set := range want {
		if len(set) != len(got[id]) {
			t.Fatalf("job %d: got %d indices, want %d", id, len(got[id]), len(set))
		}
		for x := range set {
			if _, ok := got[id][x]; !ok {
				t.Fatalf("job %d: missing index %d", id, x)
			}
		}
	}
}

func TestIsEmptyOnFreshTree(t *testing.T) {
	tree := New()
	if !tree.IsEmpty() {
		t.Fatalf("fresh tree should be empty")
	}
	tree.Insert(1, []uint32{1, 2, 3})
	if tree.IsEmpty() {
		t.Fatalf("tree with a registered job should not be empty")
	}
}
