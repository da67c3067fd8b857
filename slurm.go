package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"text/template"
	"time"
)

const slurmTmpl = `#!/bin/sh
#SBATCH --job-name={{.Name}}
#SBATCH --ntasks={{.NumCPUs}}
#SBATCH --mem={{.Mem}}
#SBATCH --output={{.Log}}
{{- if .Queue}}
#SBATCH --partition={{.Queue}}
{{- end}}

date
hostname
mpirun -np {{.NumCPUs}} abinit {{.Filename}} > {{.Log}}
date
`

// Slurm submits batch scripts with sbatch and reads queue state from
// squeue
type Slurm struct {
	Tmpl *template.Template
}

func NewSlurm() *Slurm {
	return &Slurm{
		Tmpl: template.Must(template.New("slurm").Parse(slurmTmpl)),
	}
}

// WriteBatch writes an sbatch script for job to filename
func (s *Slurm) WriteBatch(filename string, job *Job) {
	f, err := os.Create(filename)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	s.Tmpl.Execute(f, job)
}

// Submit submits the batch script defined by filename and returns the
// jobid. Transient failures are retried with exponential backoff; an
// exhausted retry budget surfaces the scheduler's error.
func (s *Slurm) Submit(filename string) (string, error) {
	const maxRetries = 10
	cmd := exec.Command("sbatch", filename)
	cmd.Stderr = os.Stderr
	out, err := cmd.Output()
	for i := 0; i < maxRetries && err != nil; i++ {
		fmt.Printf("Submit: having trouble submitting %s with %v\n",
			filename, err)
		time.Sleep(time.Second * time.Duration(1<<i))
		cmd := exec.Command("sbatch", filename)
		cmd.Stderr = os.Stderr
		out, err = cmd.Output()
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(
		strings.ReplaceAll(string(out), "Submitted batch job ", "")), nil
}

// Stat sets each known jobid in qstat to whether it is still pending,
// queued, or running according to squeue
func (s *Slurm) Stat(qstat map[string]bool) {
	status, _ := exec.Command("squeue", "-u", os.Getenv("USER")).
		CombinedOutput()
	readQueueStatus(strings.NewReader(string(status)), qstat)
}

// readQueueStatus parses squeue output, marking each known jobid
// found in a PD, Q, or R state
func readQueueStatus(r io.Reader, qstat map[string]bool) {
	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "JOBID") {
			header = false
			continue
		} else if header {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		if _, ok := qstat[fields[0]]; ok {
			// jobs are initially put in PD = pending state
			if strings.Contains("PDQR", fields[4]) {
				qstat[fields[0]] = true
			}
		}
	}
}
