package main

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"testing"
	"time"
)

// testQueue is a scheduler stand-in: batch scripts are stub files,
// submission hands out sequential jobids, and Stat reports every job
// as finished unless remaining says otherwise
type testQueue struct {
	submitted []string
	nextID    int
	remaining map[string]int // jobid -> polls left before it finishes
	failAll   bool
}

func (q *testQueue) WriteBatch(filename string, job *Job) {
	os.WriteFile(filename, []byte("#!/bin/sh\n"), 0755)
}

func (q *testQueue) Submit(filename string) (string, error) {
	if q.failAll {
		return "", fmt.Errorf("sbatch: error")
	}
	q.nextID++
	q.submitted = append(q.submitted, filename)
	return fmt.Sprintf("%d", q.nextID), nil
}

func (q *testQueue) Stat(qstat map[string]bool) {
	for id := range qstat {
		if q.remaining[id] > 0 {
			q.remaining[id]--
			qstat[id] = true
		}
	}
}

func resetGlobal(t *testing.T) {
	t.Helper()
	warnings, submitted := Global.Warnings, Global.Submitted
	watched := Global.WatchedJobs
	t.Cleanup(func() {
		Global.Warnings = warnings
		Global.Submitted = submitted
		Global.WatchedJobs = watched
	})
	Global.WatchedJobs = nil
	Global.Submitted = 0
}

func TestPush(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	q := &testQueue{}
	calcs := []Calc{
		{Name: dir + "/a", Index: 0},
		{Name: dir + "/b", Index: 1, Err: fmt.Errorf("build failed")},
		{Name: dir + "/c", Index: 2},
	}
	got := Push(q, calcs)
	if got[0].JobID != "1" || got[2].JobID != "2" {
		t.Errorf("got jobids %q and %q, wanted 1 and 2\n",
			got[0].JobID, got[2].JobID)
	}
	if got[1].JobID != "" {
		t.Errorf("errored calc got jobid %q\n", got[1].JobID)
	}
	if Global.Submitted != 2 {
		t.Errorf("got %d submitted, wanted 2\n", Global.Submitted)
	}
	want := []string{"1", "2"}
	if !reflect.DeepEqual(Global.WatchedJobs, want) {
		t.Errorf("got %v, wanted %v\n", Global.WatchedJobs, want)
	}
	for _, i := range []int{0, 2} {
		if _, err := os.Stat(calcs[i].Name + ".sh"); err != nil {
			t.Errorf("missing batch script for %s\n", calcs[i].Name)
		}
	}
}

func TestPushSubmitFailure(t *testing.T) {
	resetGlobal(t)
	dir := t.TempDir()
	q := &testQueue{failAll: true}
	calcs := []Calc{
		{Name: dir + "/a", Index: 0},
		{Name: dir + "/b", Index: 1},
	}
	got := Push(q, calcs)
	for i := range got {
		if !errors.Is(got[i].Err, ErrSubmit) {
			t.Errorf("calc %d: got %v, wanted ErrSubmit\n", i, got[i].Err)
		}
	}
	if len(Global.WatchedJobs) != 0 {
		t.Errorf("got %v, wanted no watched jobs\n", Global.WatchedJobs)
	}
}

func TestWaitBatch(t *testing.T) {
	resetGlobal(t)
	// job 2 stays in the queue for two polls
	q := &testQueue{remaining: map[string]int{"2": 2}}
	Global.WatchedJobs = []string{"1", "2"}
	WaitBatch(q, time.Millisecond)
	if len(Global.WatchedJobs) != 0 {
		t.Errorf("got %v, wanted empty watch list\n", Global.WatchedJobs)
	}
}
