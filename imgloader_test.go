// Copyright 2024-2025 Sebastian Lederer. See the file LICENSE.md for details
package main

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func createRawImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to create image file: %v", err)
	}
	return path
}

func createZipImage(t *testing.T, entries map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.zip")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create zip: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	for name, data := range entries {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("Failed to create %s in zip: %v", name, err)
		}
		if _, err := fw.Write(data); err != nil {
			t.Fatalf("Failed to write %s to zip: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close zip: %v", err)
	}
	return path
}

func createGzipImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create gzip: %v", err)
	}
	defer f.Close()

	w := gzip.NewWriter(f)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Failed to write gzip: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close gzip: %v", err)
	}
	return path
}

func createTarGzImage(t *testing.T, entry string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.tar.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create tar.gz: %v", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)
	hdr := &tar.Header{Name: entry, Mode: 0644, Size: int64(len(data)), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("Failed to write tar header: %v", err)
	}
	if _, err := tw.Write(data); err != nil {
		t.Fatalf("Failed to write tar entry: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("Failed to close tar: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("Failed to close gzip: %v", err)
	}
	return path
}

func TestLoadRawImage(t *testing.T) {
	testData := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	path := createRawImage(t, "disk.img", testData)

	data, name, err := loadImageFile(path)
	if err != nil {
		t.Fatalf("loadImageFile failed: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Fatalf("Data mismatch: got % X, expected % X", data, testData)
	}
	if name != "disk.img" {
		t.Fatalf("Name mismatch: got %s, expected disk.img", name)
	}
}

func TestLoadRawImageAnyExtension(t *testing.T) {
	// raw flat files are accepted whatever they are called
	testData := []byte{0xDE, 0xAD}
	path := createRawImage(t, "card", testData)

	data, _, err := loadImageFile(path)
	if err != nil {
		t.Fatalf("loadImageFile failed: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Fatal("Data mismatch for extensionless image")
	}
}

func TestLoadZipImage(t *testing.T) {
	testData := []byte{0xAA, 0xBB, 0xCC}
	path := createZipImage(t, map[string][]byte{
		"README.txt":      []byte("not the image"),
		"nested/disk.img": testData,
	})

	data, name, err := loadImageFile(path)
	if err != nil {
		t.Fatalf("loadImageFile failed: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Fatal("Data mismatch for zipped image")
	}
	if name != "disk.img" {
		t.Fatalf("Name mismatch: got %s, expected disk.img", name)
	}
}

func TestLoadZipWithoutImageEntry(t *testing.T) {
	path := createZipImage(t, map[string][]byte{
		"README.txt": []byte("nothing to boot here"),
	})

	_, _, err := loadImageFile(path)
	if !errors.Is(err, ErrNoImageFile) {
		t.Fatalf("Expected ErrNoImageFile, got %v", err)
	}
}

func TestLoadGzipImage(t *testing.T) {
	testData := []byte{0x10, 0x20, 0x30}
	path := createGzipImage(t, "disk.img.gz", testData)

	data, name, err := loadImageFile(path)
	if err != nil {
		t.Fatalf("loadImageFile failed: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Fatal("Data mismatch for gzipped image")
	}
	if name != "disk.img" {
		t.Fatalf("Name mismatch: got %s, expected disk.img", name)
	}
}

func TestLoadTarGzImage(t *testing.T) {
	testData := []byte{0x55, 0x66}
	path := createTarGzImage(t, "tools/disk.img", testData)

	data, name, err := loadImageFile(path)
	if err != nil {
		t.Fatalf("loadImageFile failed: %v", err)
	}
	if !bytes.Equal(data, testData) {
		t.Fatal("Data mismatch for tar.gz image")
	}
	if name != "disk.img" {
		t.Fatalf("Name mismatch: got %s, expected disk.img", name)
	}
}

func TestLoadOversizedArchiveEntry(t *testing.T) {
	path := createGzipImage(t, "disk.img.gz", make([]byte, CardCapacity+10))

	_, _, err := loadImageFile(path)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("Expected ErrImageTooLarge, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := loadImageFile(filepath.Join(t.TempDir(), "nope.img"))
	if err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}
