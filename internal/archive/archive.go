// Package archive bundles tile step directories into .tar.xz archives and
// unpacks them again. Both sides stream, archives are never held in memory.
package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"
)

// Compress writes the contents of srcDir to destPath as a .tar.xz archive.
// Entry names are relative to srcDir, so unpacking the archive into any
// directory recreates the same tree.
func Compress(srcDir, destPath string) error {
	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", destPath, err)
	}

	xzWriter, err := xz.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to start xz stream: %w", err)
	}
	tarWriter := tar.NewWriter(xzWriter)

	if err := addTree(tarWriter, srcDir); err != nil {
		_ = tarWriter.Close()
		_ = xzWriter.Close()
		_ = out.Close()
		return err
	}

	// Close order matters: tar trailer, then xz stream footer, then the file.
	if err := tarWriter.Close(); err != nil {
		_ = xzWriter.Close()
		_ = out.Close()
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := xzWriter.Close(); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to finish xz stream: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close archive %s: %w", destPath, err)
	}

	return nil
}

func addTree(tarWriter *tar.Writer, srcDir string) error {
	return filepath.WalkDir(srcDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			header.Name = filepath.ToSlash(rel) + "/"
			return tarWriter.WriteHeader(header)
		case info.Mode().IsRegular():
			return addFile(tarWriter, path, rel, info)
		default:
			// Step directories only hold regular files, skip anything else.
			return nil
		}
	})
}

func addFile(tarWriter *tar.Writer, path, rel string, info fs.FileInfo) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = filepath.ToSlash(rel)

	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(tarWriter, file); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to archive %s: %w", path, err)
	}

	return file.Close()
}

// Decompress unpacks the .tar.xz archive at srcPath into destDir, creating
// it if needed. Entries whose name escapes destDir are rejected.
func Decompress(srcPath, destDir string) error {
	in, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", srcPath, err)
	}
	defer func() { _ = in.Close() }()

	xzReader, err := xz.NewReader(in)
	if err != nil {
		return fmt.Errorf("failed to read xz stream of %s: %w", srcPath, err)
	}
	tarReader := tar.NewReader(xzReader)

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", destDir, err)
	}

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive %s: %w", srcPath, err)
		}
		if err := extractEntry(tarReader, header, destDir); err != nil {
			return err
		}
	}
}

func extractEntry(tarReader *tar.Reader, header *tar.Header, destDir string) error {
	name := filepath.FromSlash(header.Name)
	if !filepath.IsLocal(name) {
		return fmt.Errorf("archive entry escapes destination: %s", header.Name)
	}
	path := filepath.Join(destDir, name)

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(path, 0o750)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return err
		}
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(file, tarReader); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to extract %s: %w", header.Name, err)
		}
		return file.Close()
	default:
		// Compress never writes links or special files, drop them on the
		// way out as well.
		return nil
	}
}
