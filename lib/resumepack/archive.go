// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package resumepack

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the archive compression algorithm. Pack
// contents are text-like (JSON documents, JSONL logs, CBOR records),
// so zstd is the default; lz4 trades ratio for speed.
type Compression string

const (
	CompressionZstd Compression = "zstd"
	CompressionLZ4  Compression = "lz4"
)

// archiveSuffix returns the file suffix for the given compression,
// with ".age" appended when the archive is sealed.
func archiveSuffix(compression Compression, sealed bool) (string, error) {
	var suffix string
	switch compression {
	case CompressionZstd, "":
		suffix = ".tar.zst"
	case CompressionLZ4:
		suffix = ".tar.lz4"
	default:
		return "", fmt.Errorf("resumepack: unknown compression %q", compression)
	}
	if sealed {
		suffix += ".age"
	}
	return suffix, nil
}

// writeArchive bundles the pack directory into a single portable
// archive at archivePath: tar, compressed, optionally sealed to an
// age X25519 recipient.
func writeArchive(packDir, archivePath string, compression Compression, recipientKey string) error {
	output, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("resumepack: creating archive %s: %w", archivePath, err)
	}

	success := false
	defer func() {
		output.Close()
		if !success {
			os.Remove(archivePath)
		}
	}()

	// Build the writer stack outermost first: file <- seal <-
	// compress <- tar.
	var sink io.Writer = output
	var sealWriter io.WriteCloser
	if recipientKey != "" {
		recipient, err := age.ParseX25519Recipient(recipientKey)
		if err != nil {
			return fmt.Errorf("resumepack: parsing recipient key: %w", err)
		}
		sealWriter, err = age.Encrypt(sink, recipient)
		if err != nil {
			return fmt.Errorf("resumepack: starting seal: %w", err)
		}
		sink = sealWriter
	}

	var compressCloser io.WriteCloser
	switch compression {
	case CompressionZstd, "":
		encoder, err := zstd.NewWriter(sink)
		if err != nil {
			return fmt.Errorf("resumepack: starting zstd: %w", err)
		}
		compressCloser = encoder
	case CompressionLZ4:
		compressCloser = lz4.NewWriter(sink)
	default:
		return fmt.Errorf("resumepack: unknown compression %q", compression)
	}

	tarWriter := tar.NewWriter(compressCloser)
	if err := tarDirectory(tarWriter, packDir); err != nil {
		return err
	}
	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("resumepack: finishing tar: %w", err)
	}
	if err := compressCloser.Close(); err != nil {
		return fmt.Errorf("resumepack: finishing compression: %w", err)
	}
	if sealWriter != nil {
		if err := sealWriter.Close(); err != nil {
			return fmt.Errorf("resumepack: finishing seal: %w", err)
		}
	}
	if err := output.Sync(); err != nil {
		return fmt.Errorf("resumepack: syncing archive: %w", err)
	}

	success = true
	return nil
}

// tarDirectory writes every regular file under root into tarWriter
// with paths relative to root.
func tarDirectory(tarWriter *tar.Writer, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		header := &tar.Header{
			Name:    filepath.ToSlash(relPath),
			Mode:    0o644,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("resumepack: writing tar header for %s: %w", relPath, err)
		}
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("resumepack: opening %s: %w", path, err)
		}
		defer file.Close()
		if _, err := io.Copy(tarWriter, file); err != nil {
			return fmt.Errorf("resumepack: archiving %s: %w", relPath, err)
		}
		return nil
	})
}

// extractArchive unpacks an archive into destDir, reversing the
// writer stack chosen by its suffix. identityKey is required for
// sealed (".age") archives.
func extractArchive(archivePath, destDir, identityKey string) error {
	input, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("resumepack: opening archive %s: %w", archivePath, err)
	}
	defer input.Close()

	name := archivePath
	var source io.Reader = input
	if strings.HasSuffix(name, ".age") {
		if identityKey == "" {
			return fmt.Errorf("resumepack: archive %s is sealed and no identity was supplied", archivePath)
		}
		identity, err := age.ParseX25519Identity(identityKey)
		if err != nil {
			return fmt.Errorf("resumepack: parsing identity key: %w", err)
		}
		unsealed, err := age.Decrypt(source, identity)
		if err != nil {
			return fmt.Errorf("resumepack: unsealing %s: %w", archivePath, err)
		}
		source = unsealed
		name = strings.TrimSuffix(name, ".age")
	}

	switch {
	case strings.HasSuffix(name, ".tar.zst"):
		decoder, err := zstd.NewReader(source)
		if err != nil {
			return fmt.Errorf("resumepack: starting zstd decode: %w", err)
		}
		defer decoder.Close()
		source = decoder
	case strings.HasSuffix(name, ".tar.lz4"):
		source = lz4.NewReader(source)
	default:
		return fmt.Errorf("resumepack: unrecognized archive suffix on %s", archivePath)
	}

	tarReader := tar.NewReader(source)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("resumepack: reading tar from %s: %w", archivePath, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		relPath := filepath.FromSlash(header.Name)
		if filepath.IsAbs(relPath) || strings.Contains(relPath, "..") {
			return fmt.Errorf("resumepack: unsafe path %q in archive", header.Name)
		}
		destPath := filepath.Join(destDir, relPath)
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("resumepack: creating %s: %w", filepath.Dir(destPath), err)
		}
		file, err := os.Create(destPath)
		if err != nil {
			return fmt.Errorf("resumepack: creating %s: %w", destPath, err)
		}
		if _, err := io.Copy(file, tarReader); err != nil {
			file.Close()
			return fmt.Errorf("resumepack: extracting %s: %w", relPath, err)
		}
		if err := file.Close(); err != nil {
			return fmt.Errorf("resumepack: closing %s: %w", destPath, err)
		}
	}
}
