// Copyright 2024-2025 Sebastian Lederer. See the file LICENSE.md for details
package main

import (
	"log"
)

type word uint32

const IOStartAddr = 2048

const IOSlotSize = 128

const IOSlotCount = 16

const IOEndAddr = IOStartAddr + IOSlotSize*IOSlotCount

// Mem is the memory-mapped I/O window of the emulated machine. Devices
// occupy fixed 128-byte slots; accesses outside any attached slot read
// as zero and ignore writes. RAM and the CPU live outside this module
// and reach the devices only through read/write.
type Mem struct {
	iohandler [IOSlotCount]IOHandler
}

func (m *Mem) slot(byteaddr word) IOHandler {
	if byteaddr < IOStartAddr || byteaddr >= IOEndAddr {
		return nil
	}
	return m.iohandler[(byteaddr-IOStartAddr)/IOSlotSize]
}

func (m *Mem) attachIO(h IOHandler, slot int) {
	if m.iohandler[slot] != nil {
		log.Panicf("I/O handler %d already attached", slot)
	}

	m.iohandler[slot] = h
}

func (m *Mem) read(byteaddr word) (word, error) {
	if h := m.slot(byteaddr); h != nil {
		return h.read((byteaddr - IOStartAddr) % IOSlotSize)
	}
	return 0, nil
}

func (m *Mem) write(value word, byteaddr word) error {
	if h := m.slot(byteaddr); h != nil {
		return h.write(value, (byteaddr-IOStartAddr)%IOSlotSize)
	}
	return nil
}
