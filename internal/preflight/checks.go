package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sys/unix"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the filesystem holding path has at least minFree bytes free.
func CheckDiskSpace(ctx context.Context, name, path string, minFree uint64) Result {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("usage unavailable (%v)", err)}
	}
	detail := fmt.Sprintf("%s free of %s", humanize.IBytes(usage.Free), humanize.IBytes(usage.Total))
	if usage.Free < minFree {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (need %s)", humanize.IBytes(minFree))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckMemory verifies at least minAvailable bytes of memory are available.
func CheckMemory(ctx context.Context, minAvailable uint64) Result {
	const name = "Memory"
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("usage unavailable (%v)", err)}
	}
	detail := fmt.Sprintf("%s available of %s", humanize.IBytes(vm.Available), humanize.IBytes(vm.Total))
	if vm.Available < minAvailable {
		return Result{Name: name, Detail: detail + fmt.Sprintf(" (need %s)", humanize.IBytes(minAvailable))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// ErrInsufficientMemory indicates an encode would not fit in available memory.
var ErrInsufficientMemory = errors.New("insufficient memory for encode")

// EstimateEncodeMemory approximates the peak working set of one encode of a
// w×h canvas. The streaming encoder holds the first and previous RGBA frames,
// the frame being prepared and one transition batch. Output bytes are bounded
// by the size quota and counted as one paletted canvas per frame.
func EstimateEncodeMemory(w, h, frames, transitionSteps int) uint64 {
	if w <= 0 || h <= 0 || frames <= 0 {
		return 0
	}
	pixels := uint64(w) * uint64(h)
	rgba := pixels * 4
	emitted := uint64(frames) * uint64(1+max(transitionSteps, 0))
	return rgba*uint64(3+max(transitionSteps, 0)) + pixels*emitted
}

// MemoryGuard checks encode estimates against available memory.
type MemoryGuard struct {
	// Available reports free memory; nil uses gopsutil.
	Available func(ctx context.Context) (uint64, error)
}

// Check returns ErrInsufficientMemory when need exceeds available memory.
// A failure to read memory statistics admits the encode.
func (g MemoryGuard) Check(ctx context.Context, need uint64) error {
	available := g.Available
	if available == nil {
		available = availableMemory
	}
	free, err := available(ctx)
	if err != nil {
		return nil
	}
	if need > free {
		return fmt.Errorf("%w: need %s, %s available", ErrInsufficientMemory, humanize.IBytes(need), humanize.IBytes(free))
	}
	return nil
}

func availableMemory(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
