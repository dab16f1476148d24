package fieldtrain

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// snapshotName is the source archive written into every run directory.
const snapshotName = "source_snapshot.zip"

// snapshotSource archives the Go source tree rooted at srcDir into
// runDir/source_snapshot.zip, for reproducibility of the run. Only source
// and module files are taken; hidden directories, directories starting with
// an underscore and the log directories themselves are skipped.
func snapshotSource(srcDir, runDir string) error {
	outPath := filepath.Join(runDir, snapshotName)
	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrapf(err, "failed to create source snapshot %q", outPath)
	}
	zw := zip.NewWriter(out)
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path == srcDir {
				return nil
			}
			if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
				return filepath.SkipDir
			}
			// Never recurse into the run output.
			if absEq(path, runDir) || absEq(path, filepath.Dir(runDir)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") && name != "go.mod" && name != "go.sum" {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, f)
		_ = f.Close()
		return err
	})
	if err != nil {
		_ = zw.Close()
		_ = out.Close()
		return errors.Wrapf(err, "failed to snapshot source tree %q", srcDir)
	}
	if err = zw.Close(); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "failed to finish source snapshot %q", outPath)
	}
	return errors.Wrapf(out.Close(), "failed to close source snapshot %q", outPath)
}

func absEq(a, b string) bool {
	aa, errA := filepath.Abs(a)
	bb, errB := filepath.Abs(b)
	return errA == nil && errB == nil && aa == bb
}
