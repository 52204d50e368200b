// Copyright 2024-2025 Sebastian Lederer. See the file LICENSE.md for details
package main

import (
	"fmt"
	"log"
)

const BlockSize = 512

const CardCapacity = 4 * 1024 * 1024

const CardBlocks = CardCapacity / BlockSize

// BlockStore holds the raw card contents. It is filled once by load at
// reset time and only read afterwards; there is no write command.
type BlockStore struct {
	contents []byte
}

// load reads the backing image into the store, replacing any previous
// contents. A missing or wrong-sized image is a fatal configuration
// error: the emulated machine cannot boot from bad media.
func (b *BlockStore) load(path string) {
	data, name, err := loadImageFile(path)
	if err != nil {
		log.Panicf("cannot load SD card image %v: %v", path, err)
	}
	if len(data) != CardCapacity {
		log.Panicf("SD card image %v is %v instead of %v bytes", name, len(data), CardCapacity)
	}

	b.contents = data
	fmt.Printf("loaded SD card image %v, %v blocks of %v bytes\n", name, CardBlocks, BlockSize)
}

// readBlock returns a view of one 512-byte block. Callers must stay
// within the card; an out-of-range index is an internal error.
func (b *BlockStore) readBlock(index uint32) []byte {
	if index >= CardBlocks {
		log.Panicf("SD block %v out of range, card has %v blocks", index, CardBlocks)
	}

	offset := int(index) * BlockSize
	return b.contents[offset : offset+BlockSize]
}
