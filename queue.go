package main

import (
	"errors"
	"fmt"
	"time"
)

// ErrSubmit is returned when the scheduler rejects a job after the
// retry budget is exhausted. It aborts only the affected job's
// contribution, not the batch.
var ErrSubmit = errors.New("job submission rejected")

// Calc holds one dispatched calculation: the base name of its input
// and output files and its result's index in the batch
type Calc struct {
	Name  string
	Index int
	JobID string
	Err   error
}

// Job holds the information for one batch script
type Job struct {
	Name     string
	Filename string
	Log      string
	Queue    string
	NumCPUs  int
	Mem      string
}

// Queue is the interface to the external batch scheduler
type Queue interface {
	WriteBatch(filename string, job *Job)
	Submit(filename string) (string, error)
	// Stat sets each known jobid in qstat to whether it is still
	// queued or running
	Stat(qstat map[string]bool)
}

// Push writes a batch script for every calc and submits them in
// order. Submission order is preserved: result i always corresponds
// to calcs[i]. Submission failures are recorded on the affected calc
// and do not stop the rest of the batch. Submitted jobids are added
// to the global watch list for WaitBatch.
func Push(q Queue, calcs []Calc) []Calc {
	for i := range calcs {
		if calcs[i].Err != nil {
			continue
		}
		subfile := calcs[i].Name + ".sh"
		q.WriteBatch(subfile, &Job{
			Name:     calcs[i].Name,
			Filename: calcs[i].Name + ".abi",
			Log:      calcs[i].Name + ".log",
			Queue:    Conf.WorkQueue,
			NumCPUs:  Conf.NumCPUs,
			Mem:      Conf.Mem,
		})
		jobid, err := q.Submit(subfile)
		if err != nil {
			calcs[i].Err = fmt.Errorf("%w: %s: %v",
				ErrSubmit, calcs[i].Name, err)
			continue
		}
		if *debug {
			fmt.Printf("submitted %s from %s\n", jobid, subfile)
		}
		calcs[i].JobID = jobid
		Global.Submitted++
		Global.WatchedJobs = append(Global.WatchedJobs, jobid)
	}
	return calcs
}

// WaitBatch polls the scheduler at the given interval until every
// watched job has left the queue, then clears the watch list. There
// is exactly one such wait per batch and it has no hard timeout; the
// wait is unbounded until the scheduler reports completion.
func WaitBatch(q Queue, interval time.Duration) {
	for len(Global.WatchedJobs) > 0 {
		qstat := make(map[string]bool)
		for _, id := range Global.WatchedJobs {
			qstat[id] = false
		}
		q.Stat(qstat)
		running := Global.WatchedJobs[:0]
		for _, id := range Global.WatchedJobs {
			if qstat[id] {
				running = append(running, id)
			}
		}
		Global.WatchedJobs = running
		if len(Global.WatchedJobs) == 0 {
			return
		}
		time.Sleep(interval)
	}
}
