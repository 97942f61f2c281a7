// Package preflight implements the first pipeline gate: read-only checks that
// every target exists, is not protected, is writable, and that the backup
// volume can hold twice the combined size of all targets plus a fixed floor.
// The gate fails fast on the first fault and changes nothing on disk.
package preflight

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/lyndonlyu/sweep/internal/target"
)

// Fault identifies why a target failed pre-flight.
type Fault string

const (
	PathNotFound          Fault = "PATH_NOT_FOUND"
	ProtectedPath         Fault = "PROTECTED_PATH"
	PermissionDenied      Fault = "PERMISSION_DENIED"
	InsufficientDiskSpace Fault = "INSUFFICIENT_DISK_SPACE"
)

// Failure is the fatal result of a failed check. It satisfies error so the
// pipeline can surface target, fault, and detail in one value.
type Failure struct {
	Target string `json:"target"`
	Fault  Fault  `json:"fault"`
	Detail string `json:"detail"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("preflight: %s: %s (%s)", f.Fault, f.Target, f.Detail)
}

// CheckResult records one passed or failed check for rendering.
type CheckResult struct {
	Target string `json:"target"`
	Check  string `json:"check"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// Result is the aggregate gate outcome. On failure, Checked holds every check
// up to and including the failing one; later targets are never examined.
type Result struct {
	Passed  bool          `json:"passed"`
	Checked []CheckResult `json:"checked"`
	Failure *Failure      `json:"failure,omitempty"`
}

// protectedRoots are whole subtrees that may never be a target. Compiled in;
// not overridable by configuration.
var protectedRoots = []string{
	"/bin", "/boot", "/dev", "/etc", "/lib", "/lib64",
	"/proc", "/run", "/sbin", "/sys", "/usr",
}

// protectedExact are paths protected themselves but whose children are fair
// game (deleting /home/alice/scratch is fine, deleting /home is not).
var protectedExact = []string{
	"/", "/home", "/root", "/var", "/opt", "/srv", "/tmp",
}

// diskHeadroomFloor is the minimum free space kept beyond the backup size.
const diskHeadroomFloor = 10 << 20

// Gate runs the pre-flight checks. statfs is swappable for tests.
type Gate struct {
	backupDir string
	statfs    func(path string) (free uint64, err error)
}

func New(backupDir string) *Gate {
	return &Gate{backupDir: backupDir, statfs: freeBytes}
}

// Run checks every target in order and fails fast: the first fault stops the
// gate and remaining targets are not checked. Read-only.
func (g *Gate) Run(targets []target.Target) Result {
	var checked []CheckResult

	record := func(t target.Target, check string, f *Failure) *Failure {
		r := CheckResult{Target: t.Path, Check: check, Passed: f == nil}
		if f != nil {
			r.Detail = f.Detail
		}
		checked = append(checked, r)
		return f
	}

	// The disk requirement is cumulative: the backup volume must hold twice
	// the combined size of every target. The check runs per target on the
	// running total so the failure names the target that tips it over.
	var totalBytes uint64
	for _, t := range targets {
		if f := record(t, "exists", g.checkExists(t)); f != nil {
			return Result{Checked: checked, Failure: f}
		}
		if f := record(t, "protected", g.checkProtected(t)); f != nil {
			return Result{Checked: checked, Failure: f}
		}
		if f := record(t, "permissions", g.checkPermissions(t)); f != nil {
			return Result{Checked: checked, Failure: f}
		}
		if f := record(t, "disk", g.checkDiskSpace(t, &totalBytes)); f != nil {
			return Result{Checked: checked, Failure: f}
		}
	}
	return Result{Passed: true, Checked: checked}
}

func (g *Gate) checkExists(t target.Target) *Failure {
	if _, err := os.Lstat(t.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Failure{Target: t.Path, Fault: PathNotFound, Detail: "no such file or directory"}
		}
		return &Failure{Target: t.Path, Fault: PermissionDenied, Detail: err.Error()}
	}
	return nil
}

func (g *Gate) checkProtected(t target.Target) *Failure {
	if IsProtected(t.Path) {
		return &Failure{Target: t.Path, Fault: ProtectedPath, Detail: "matches the protected system path set"}
	}
	if t.Op == target.Move && IsProtected(t.Dest) {
		return &Failure{Target: t.Path, Fault: ProtectedPath, Detail: "move destination " + t.Dest + " is protected"}
	}
	return nil
}

func (g *Gate) checkPermissions(t target.Target) *Failure {
	if err := unix.Access(t.Path, unix.R_OK); err != nil {
		return &Failure{Target: t.Path, Fault: PermissionDenied, Detail: "not readable"}
	}
	// Deleting or moving mutates the parent directory entry.
	parent := filepath.Dir(t.Path)
	if err := unix.Access(parent, unix.W_OK|unix.X_OK); err != nil {
		return &Failure{Target: t.Path, Fault: PermissionDenied, Detail: "parent directory not writable: " + parent}
	}
	if t.Op == target.Move {
		destParent := filepath.Dir(t.Dest)
		if err := unix.Access(destParent, unix.W_OK|unix.X_OK); err != nil {
			return &Failure{Target: t.Path, Fault: PermissionDenied, Detail: "destination directory not writable: " + destParent}
		}
	}
	return nil
}

func (g *Gate) checkDiskSpace(t target.Target, totalBytes *uint64) *Failure {
	size, err := treeSize(t.Path)
	if err != nil {
		return &Failure{Target: t.Path, Fault: PermissionDenied, Detail: "cannot size target: " + err.Error()}
	}
	*totalBytes += uint64(size)
	free, err := g.statfs(g.backupDir)
	if err != nil {
		return &Failure{Target: t.Path, Fault: InsufficientDiskSpace, Detail: "cannot stat backup volume: " + err.Error()}
	}
	// Backup copy of everything so far plus working headroom.
	need := *totalBytes*2 + diskHeadroomFloor
	if free < need {
		return &Failure{
			Target: t.Path,
			Fault:  InsufficientDiskSpace,
			Detail: fmt.Sprintf("need %d bytes free to back up all targets, have %d", need, free),
		}
	}
	return nil
}

// IsProtected reports whether path falls inside the fixed deny-list.
func IsProtected(path string) bool {
	clean := filepath.Clean(path)
	for _, p := range protectedExact {
		if clean == p {
			return true
		}
	}
	for _, root := range protectedRoots {
		if clean == root || strings.HasPrefix(clean, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func treeSize(path string) (int64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries don't fail the size estimate
		}
		if d.Type().IsRegular() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total, err
}

func freeBytes(path string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
