/*
flpz drives a mode-stability analysis of a crystal and sweeps the
displacement amplitude along each unstable mode, dispatching
energy, piezoelectric, or flexoelectric calculations to an external
solver through a batch scheduler.

The run is described by a keyword input file:

	struct=cell.txt
	basis=basis.txt
	dispmag=0.001
	threshold=-20
	minamp=0
	maxamp=0.5
	numpoints=11
	kind=flexo

The structure and basis may instead be given inline as struct={ ... }
and basis={ ... } blocks holding the same keyword format as the files.
*/
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"
)

// Global run state: counters and the scheduler watch list
var Global struct {
	Warnings    int
	Submitted   int
	WatchedJobs []string
}

// Conf holds the run configuration, resolved once in main
var Conf = NewConfig()

var (
	workDir = flag.String("dir", ".", "working directory for job files")
	debug   = flag.Bool("debug", false, "print job submission details")
)

// ParseFlags parses command line flags and returns a slice of the
// remaining arguments
func ParseFlags() []string {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: flpz [flags] infile\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	return flag.Args()
}

func main() {
	args := ParseFlags()
	if len(args) < 1 {
		errExit(fmt.Errorf("no input file supplied"), "")
	}
	var err error
	Conf, err = ParseInfile(args[0])
	if err != nil {
		errExit(err, "parsing input")
	}
	var structure *Structure
	if Conf.Struct != "" {
		structure, err = ParseStructure(
			CleanSplit(Conf.Struct, "\n"), "struct block")
	} else {
		structure, err = LoadStructure(Conf.StructFile)
	}
	if err != nil {
		errExit(err, "loading structure")
	}
	var basis *BasisSet
	if Conf.Basis != "" {
		basis, err = ParseBasis(
			CleanSplit(Conf.Basis, "\n"), "basis block", structure.Natom)
	} else {
		basis, err = LoadBasis(Conf.BasisFile, structure.Natom)
	}
	if err != nil {
		errExit(err, "loading basis")
	}
	gw := &Abinit{Dir: *workDir}
	queue := NewSlurm()
	interval := time.Duration(Conf.SleepInt) * time.Second

	analysis, err := RunStability(gw, queue, structure, basis)
	if err != nil {
		errExit(err, "in stability analysis")
	}
	Summarize(analysis.Modes, Conf.Threshold)

	unstable := Unstable(analysis.Modes, Conf.Threshold)
	if len(unstable) == 0 {
		// a valid terminal outcome, not a failure
		log.Println("no unstable phonons present")
		os.Exit(0)
	}
	phonons := UnstablePhonons(analysis.Modes, unstable)
	for i, pert := range phonons {
		log.Printf("sweeping unstable mode %d (%.4f cm-1)",
			unstable[i], analysis.Modes[unstable[i]].FreqCm)
		sweep, err := NewSweep(Conf.Kind, Conf.MinAmp, Conf.MaxAmp,
			Conf.NumPoints)
		if err != nil {
			errExit(err, "building sweep")
		}
		if err := sweep.Run(gw, queue, structure, pert, interval); err != nil {
			errExit(err, "running sweep")
		}
		record := UniqueName(
			gw.Path(fmt.Sprintf("sweep_%02d", unstable[i])), ".dat")
		if err := sweep.WriteRecord(record + ".dat"); err != nil {
			errExit(err, "writing sweep record")
		}
		log.Printf("sweep over mode %d finished %s, record in %s.dat",
			unstable[i], sweep.Status, record)
		if failed := sweep.Failed(); len(failed) > 0 {
			log.Printf("failed amplitudes: %v", failed)
		}
		if Conf.Kind == Energy && sweep.Status == Complete {
			if fit, err := sweep.FitEnergyCurve(); err == nil {
				log.Printf("energy curve fit: %s", fit)
			}
		}
	}
	if Global.Warnings > 0 {
		log.Printf("finished with %d warnings", Global.Warnings)
	}
}
