// Package stage implements C6, the staging copier of spec.md §4.5: it
// materializes resolved external libraries inside the staging tree
// using a target-appropriate policy for symlinks vs. real files.
package stage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/webcamoid/DeployTools/internal/binfmt"
	"github.com/webcamoid/DeployTools/internal/platform"
)

// Copier materializes resolved libraries into a staging tree.
type Copier struct {
	Target    platform.Target
	DataDir   string // staging root
	BinDir    string // absolute path to the main executable directory
	LibDir    string // absolute path to the library directory
	Overwrite bool

	// Repositioned records, by absolute staged path, every file placed
	// under the up/ escape prefix instead of its nominal directory
	// (spec.md §4.5/§4.6): such binaries take a bare $ORIGIN /
	// @executable_path rather than a libDir-relative one.
	Repositioned map[string]bool
}

func (c *Copier) markRepositioned(path string) {
	if c.Repositioned == nil {
		c.Repositioned = map[string]bool{}
	}
	c.Repositioned[path] = true
}

// destDir is the directory C6 copies into for this target: libDir on
// POSIX/macOS/Android, the executable directory on Windows (spec.md
// §3, "Staging tree").
func (c *Copier) destDir() string {
	if c.Target.LibDirIsExecDir() {
		return c.BinDir
	}
	return c.LibDir
}

// CopyAll materializes every library in libs into the staging tree.
func (c *Copier) CopyAll(libs []string) error {
	for _, lib := range libs {
		if err := c.Copy(lib); err != nil {
			return xerrors.Errorf("stage %s: %w", lib, err)
		}
	}
	return nil
}

// Copy stages one resolved library path.
func (c *Copier) Copy(src string) error {
	if c.Target == platform.Mac {
		if root, ok := frameworkRoot(src); ok {
			return c.copyTree(root, filepath.Join(c.destDir(), filepath.Base(root)))
		}
	}

	dest := filepath.Join(c.destDir(), filepath.Base(src))

	if c.Target == platform.Windows {
		return c.copyRegularFile(src, dest)
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return c.copySymlinkChain(src, dest)
	}
	return c.copyRegularFile(src, dest)
}

// copySymlinkChain reproduces a symlink pointing at a sibling, then
// recursively copies the link target so the whole chain lives inside
// the staging tree (spec.md §4.5). A target that would escape the
// staging root is repositioned under a neutral "up/" prefix.
func (c *Copier) copySymlinkChain(src, dest string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return err
	}
	srcDir := filepath.Dir(src)
	absTarget := target
	if !filepath.IsAbs(absTarget) {
		absTarget = filepath.Join(srcDir, target)
	}

	destDir := filepath.Dir(dest)
	linkName := filepath.Base(target)

	// The link escapes when its target, reproduced beside dest, would
	// lie outside the staging root.
	inTree := target
	if !filepath.IsAbs(inTree) {
		inTree = filepath.Join(destDir, target)
	}

	var stagedTargetDest string
	if c.escapesRoot(inTree) {
		upDir := filepath.Join(c.DataDir, "up")
		if err := os.MkdirAll(upDir, 0o755); err != nil {
			return err
		}
		stagedTargetDest = filepath.Join(upDir, filepath.Base(absTarget))
		rel, err := filepath.Rel(destDir, stagedTargetDest)
		if err != nil {
			return err
		}
		linkName = rel
		c.markRepositioned(stagedTargetDest)
	} else {
		stagedTargetDest = filepath.Join(destDir, linkName)
	}

	if err := c.makeSymlink(linkName, dest); err != nil {
		return err
	}

	targetInfo, err := os.Lstat(absTarget)
	if err != nil {
		return err
	}
	if targetInfo.Mode()&os.ModeSymlink != 0 {
		return c.copySymlinkChain(absTarget, stagedTargetDest)
	}
	return c.copyRegularFile(absTarget, stagedTargetDest)
}

// escapesRoot reports whether an absolute path lies outside DataDir.
func (c *Copier) escapesRoot(absPath string) bool {
	rel, err := filepath.Rel(c.DataDir, absPath)
	if err != nil {
		return true
	}
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Copier) makeSymlink(target, dest string) error {
	if c.Overwrite {
		os.Remove(dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	if _, err := os.Lstat(dest); err == nil {
		return nil // already staged by an earlier dependency edge
	}
	return os.Symlink(target, dest)
}

func (c *Copier) copyRegularFile(src, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		if !c.Overwrite {
			return nil
		}
		if err := os.Remove(dest); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	t, err := renameio.TempFile("", dest)
	if err != nil {
		return err
	}
	defer t.Cleanup()
	if _, err := io.Copy(t, in); err != nil {
		return err
	}
	return t.CloseAtomicallyReplace()
}

// copyTree copies a whole directory (a macOS .framework bundle) as a
// unit (spec.md §4.5).
func (c *Copier) copyTree(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return c.makeSymlink(linkTarget, target)
		}
		return c.copyRegularFile(path, target)
	})
}

func frameworkRoot(path string) (string, bool) {
	const marker = ".framework"
	idx := strings.Index(path, marker)
	if idx < 0 {
		return "", false
	}
	return path[:idx+len(marker)], true
}

// ResetPermissions applies spec.md §4.5's post-copy permission policy:
// directories 0755, plain files 0644, Binary files in the executable
// directory 0744. macOS uses AT_SYMLINK_NOFOLLOW so symlinks
// themselves are never followed when chmod'ing.
func (c *Copier) ResetPermissions(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil // symlink permissions are meaningless; never followed
		}
		if info.IsDir() {
			return c.chmod(path, 0o755)
		}
		mode := os.FileMode(0o644)
		if filepath.Dir(path) == c.BinDir && binfmt.IsBinary(path) {
			mode = 0o744
		}
		return c.chmod(path, mode)
	})
}

func (c *Copier) chmod(path string, mode os.FileMode) error {
	if c.Target == platform.Mac {
		return unix.Fchmodat(unix.AT_FDCWD, path, uint32(mode), unix.AT_SYMLINK_NOFOLLOW)
	}
	return os.Chmod(path, mode)
}
