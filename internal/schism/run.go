package schism

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// ModelLogFile collects the solver output inside the cycle directory
const ModelLogFile = "schism.log"

// RunOptions describe one solver launch
type RunOptions struct {
	Dir     string
	MPIRun  string
	NCPU    int
	Solver  string
	NScribe int
}

// Command returns the program and arguments of the launch
func (o RunOptions) Command() (string, []string) {
	return o.MPIRun, []string{"-np", strconv.Itoa(o.NCPU), o.Solver, strconv.Itoa(o.NScribe)}
}

// RunModel runs the solver under MPI in the cycle directory. Output goes to
// schism.log; cancelling ctx kills the run.
func RunModel(ctx context.Context, opts RunOptions) error {
	if opts.NCPU < 1 {
		return fmt.Errorf("invalid ncpu %d", opts.NCPU)
	}
	logPath := filepath.Join(opts.Dir, ModelLogFile)
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create model log: %v", err)
	}
	defer logFile.Close()

	name, args := opts.Command()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	started := time.Now()
	log.Printf("Starting %s %v in %s", name, args, opts.Dir)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("model run cancelled after %s: %w", time.Since(started).Round(time.Second), ctx.Err())
		}
		return fmt.Errorf("model run failed after %s (see %s): %v", time.Since(started).Round(time.Second), logPath, err)
	}
	log.Printf("Model run finished in %s", time.Since(started).Round(time.Second))
	return nil
}
