package truck

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.bryk.io/x/cargonetsim/errors"
)

// terminateGrace is how long a simulator gets to exit after SIGTERM before
// it is killed outright.
const terminateGrace = 3 * time.Second

// simProcess owns one spawned simulator executable.
type simProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
}

// launchSimulator copies the simulator executable into the master file's
// directory (the simulator resolves its config paths relative to the
// binary) and starts it there with the given arguments.
func launchSimulator(exePath, masterFilePath string, args []string) (*simProcess, error) {
	dir := filepath.Dir(masterFilePath)
	localExe := filepath.Join(dir, filepath.Base(exePath))

	if _, err := os.Stat(localExe); os.IsNotExist(err) {
		if err := copyFile(exePath, localExe); err != nil {
			return nil, errors.Wrap(err, "failed to copy executable to working directory")
		}
		if err := os.Chmod(localExe, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to mark executable")
		}
	}

	cmd := exec.Command(localExe, args...)
	cmd.Dir = dir
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "failed to start simulator process")
	}

	p := &simProcess{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// terminate asks the process to exit and kills it after terminateGrace.
func (p *simProcess) terminate() {
	if p.cmd.Process == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-p.done:
	case <-time.After(terminateGrace):
		_ = p.cmd.Process.Kill()
		<-p.done
	}
}

// kill stops the process immediately.
func (p *simProcess) kill() {
	if p.cmd.Process == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
	}
	_ = p.cmd.Process.Kill()
	<-p.done
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
