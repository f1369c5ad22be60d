// Package fileutil writes output files with tmp+rename semantics so a failed
// run never leaves a truncated summary or index behind.
package fileutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteTmpThenMove writes to a temporary file then atomically moves it to
// outPath. writeFunc receives the temporary path and must write the
// complete file. An empty tmpDir places the temporary next to outPath.
func WriteTmpThenMove(tmpDir, outPath string, writeFunc func(tmpPath string) error) error {
	if tmpDir == "" {
		tmpDir = filepath.Dir(outPath)
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return fmt.Errorf("create tmp dir: %w", err)
	}

	tmpPath := filepath.Join(tmpDir, filepath.Base(outPath)+".tmp")

	if err := writeFunc(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := syncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("create output dir: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}

	return nil
}

// WriteAtomic streams writeFunc's output through a buffered temporary file
// into outPath.
func WriteAtomic(outPath string, writeFunc func(w io.Writer) error) error {
	return WriteTmpThenMove("", outPath, func(tmpPath string) error {
		f, err := os.Create(tmpPath)
		if err != nil {
			return fmt.Errorf("create %s: %w", tmpPath, err)
		}
		bw := bufio.NewWriterSize(f, 256*1024)
		if err := writeFunc(bw); err != nil {
			f.Close()
			return err
		}
		if err := bw.Flush(); err != nil {
			f.Close()
			return fmt.Errorf("flush %s: %w", tmpPath, err)
		}
		return f.Close()
	})
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	f.Close()
	return err
}
