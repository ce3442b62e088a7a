//go:build windows

package process

import (
	"fmt"
	"os/exec"
	"sync"

	"golang.org/x/sys/windows"
)

// windowsHandle identifies a child by the OS process handle obtained at
// spawn, as spec §4.A describes: the kernel guarantees the handle stays
// bound to this process (not a reused PID) for as long as it's open, so
// there is no PID-reuse race to guard against the way the POSIX side needs
// a reaper for.
type windowsHandle struct {
	pid    int
	handle windows.Handle

	mu     sync.Mutex
	exited bool
	result ExitResult
}

func spawnPlatform(spec Spec) (Handle, error) {
	cmd := exec.Command(spec.Program, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	pid := cmd.Process.Pid

	// Open our own handle while os/exec still holds the spawn handle, so the
	// pid cannot have been reused in between.
	const access = windows.PROCESS_QUERY_INFORMATION |
		windows.PROCESS_TERMINATE |
		windows.SYNCHRONIZE |
		windows.PROCESS_SUSPEND_RESUME
	h, err := windows.OpenProcess(access, false, uint32(pid))
	_ = cmd.Process.Release()
	if err != nil {
		return nil, err
	}
	return &windowsHandle{pid: pid, handle: h}, nil
}

func (h *windowsHandle) Pid() int { return h.pid }

func (h *windowsHandle) exitCode() (ExitResult, error) {
	var code uint32
	if err := windows.GetExitCodeProcess(h.handle, &code); err != nil {
		return ExitResult{}, err
	}
	return ExitResult{Code: int(int32(code))}, nil
}

func (h *windowsHandle) Wait() (ExitResult, error) {
	h.mu.Lock()
	if h.exited {
		r := h.result
		h.mu.Unlock()
		return r, nil
	}
	h.mu.Unlock()

	ev, err := windows.WaitForSingleObject(h.handle, windows.INFINITE)
	if err != nil {
		return ExitResult{}, err
	}
	if ev != windows.WAIT_OBJECT_0 {
		return ExitResult{}, fmt.Errorf("process: WaitForSingleObject returned event %d", ev)
	}
	res, err := h.exitCode()
	if err != nil {
		return ExitResult{}, err
	}
	h.mu.Lock()
	h.exited = true
	h.result = res
	h.mu.Unlock()
	return res, nil
}

func (h *windowsHandle) TryWait() (*ExitResult, error) {
	h.mu.Lock()
	if h.exited {
		r := h.result
		h.mu.Unlock()
		return &r, nil
	}
	h.mu.Unlock()

	ev, err := windows.WaitForSingleObject(h.handle, 0)
	if err != nil {
		return nil, err
	}
	if ev == uint32(windows.WAIT_TIMEOUT) {
		return nil, nil
	}
	res, err := h.exitCode()
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.exited = true
	h.result = res
	h.mu.Unlock()
	return &res, nil
}

func (h *windowsHandle) Kill() error {
	err := windows.TerminateProcess(h.handle, 1)
	if err != nil {
		// TerminateProcess fails on a process that has already exited.
		if res, werr := h.TryWait(); werr == nil && res != nil {
			return nil
		}
		return err
	}
	return nil
}

// The NT suspend/resume routines are undocumented but have been stable
// across Windows releases (spec §4.A); x/sys/windows doesn't wrap them, so
// they're resolved the same way the rest of the ecosystem does: a lazy
// ntdll.dll binding.
var (
	modNtdll             = windows.NewLazySystemDLL("ntdll.dll")
	procNtSuspendProcess = modNtdll.NewProc("NtSuspendProcess")
	procNtResumeProcess  = modNtdll.NewProc("NtResumeProcess")
)

func (h *windowsHandle) Suspend() error {
	r, _, _ := procNtSuspendProcess.Call(uintptr(h.handle))
	if r != 0 {
		return fmt.Errorf("process: NtSuspendProcess failed: status=0x%x", r)
	}
	return nil
}

func (h *windowsHandle) Resume() error {
	r, _, _ := procNtResumeProcess.Call(uintptr(h.handle))
	if r != 0 {
		return fmt.Errorf("process: NtResumeProcess failed: status=0x%x", r)
	}
	return nil
}
