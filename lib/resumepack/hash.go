// Copyright 2026 The Contextfold Authors
// SPDX-License-Identifier: Apache-2.0

package resumepack

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// fileDomainKey is the 32-byte BLAKE3 key for pack file hashing.
// Domain separation keeps pack hashes from ever colliding with hashes
// computed elsewhere over the same bytes. The bytes are the ASCII
// encoding of the domain name, zero-padded, so the key is inspectable
// in hex dumps without losing any cryptographic property.
var fileDomainKey = [32]byte{
	'c', 'o', 'n', 't', 'e', 'x', 't', 'f', 'o', 'l', 'd', '.',
	'p', 'a', 'c', 'k', '.', 'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// hashFile computes the hex-encoded BLAKE3-256 content hash of the
// file at path, streaming rather than loading the file whole.
func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("resumepack: opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	hasher, err := blake3.NewKeyed(fileDomainKey[:])
	if err != nil {
		panic("resumepack: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("resumepack: hashing %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
