// Copyright 2024-2025 Sebastian Lederer. See the file LICENSE.md for details
package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"
)

type SDState uint

const (
	IDLE SDState = iota
	READY
	COLLECTING
)

// Register offsets inside the device's 128-byte I/O slot. The guest
// clocks bytes out by writing TXDATA and pulls reply bytes by reading
// RXDATA; every other offset reads as zero.
const (
	SPI_TXDATA = 72
	SPI_RXDATA = 76
)

// Supported command opcodes, 0x40 | command number.
const (
	CMD0   = 0x40 // GO_IDLE_STATE
	CMD8   = 0x48 // SEND_IF_COND
	CMD16  = 0x50 // SET_BLOCKLEN, ignored
	CMD17  = 0x51 // READ_SINGLE_BLOCK
	ACMD41 = 0x69 // APP_SEND_OP_COND
	CMD55  = 0x77 // APP_CMD
	CMD58  = 0x7A // READ_OCR
)

const FillerByte = 0xFF

const StartToken = 0xFE

const FrameLen = 6

const CmdBufSize = 32

const ReadLatency = 30 * time.Millisecond

var cmd8Reply = []byte{0x01, 0x00, 0x00, 0x01, 0xAA}

var cmd58Reply = []byte{0x00, 0xC0, 0xFF, 0x80, 0x00}

// SDCard emulates an SD card in SPI mode behind a pair of byte-wide
// data registers. Every transition happens inside read/write; nothing
// runs on its own clock. The mutex only matters if several emulated
// buses share one card instance.
type SDCard struct {
	mu      sync.Mutex
	store   BlockStore
	imgpath string

	state    SDState
	cmd      []byte // command frame accumulator
	replyPos int    // cursor into the current multi-byte reply
	blockNo  uint32
	frame    []byte // CMD17 reply frame, nil unless one is queued

	latency time.Duration
	debug   bool
}

// openImage records the backing image path and performs the initial
// reset. Image problems are fatal, matching a machine that cannot
// find its boot media.
func (s *SDCard) openImage(filename string) {
	s.imgpath = filename
	s.latency = ReadLatency
	s.reset()
}

// reset reloads the card contents and drops all transient protocol
// state, as on machine reset.
func (s *SDCard) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.load(s.imgpath)
	s.state = IDLE
	s.cmd = s.cmd[:0]
	s.replyPos = 0
	s.blockNo = 0
	s.frame = nil
}

func (s *SDCard) write(value word, byteaddr word) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byteaddr&(IOSlotSize-1) != SPI_TXDATA {
		return nil
	}
	inbyte := byte(value)

	if s.debug {
		fmt.Printf("** SDCard write %02X state %v buflen %v\n", inbyte, s.state, len(s.cmd))
	}

	if s.state == COLLECTING {
		if len(s.cmd) >= FrameLen && inbyte == FillerByte {
			// clock filler while a reply is being pulled
			return nil
		}
		s.cmd = append(s.cmd, inbyte)
		if len(s.cmd) == CmdBufSize {
			log.Panicf("SD command buffer overflow, cmd 0x%02X", s.cmd[0])
		}
		return nil
	}

	switch inbyte {
	case CMD0, CMD8, CMD16, CMD17, ACMD41, CMD55, CMD58:
		s.cmd = append(s.cmd[:0], inbyte)
		s.replyPos = 0
		s.state = COLLECTING
	case FillerByte:
		// clock filler between frames
	default:
		log.Panicf("unknown SD command type=0x%02X", inbyte)
	}

	return nil
}

func (s *SDCard) read(byteaddr word) (word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if byteaddr&(IOSlotSize-1) != SPI_RXDATA {
		return 0, nil
	}

	// no reply until a full 6-byte frame has arrived
	if s.state != COLLECTING || len(s.cmd) < FrameLen {
		return FillerByte, nil
	}

	kind := s.cmd[0]
	ret := s.nextReply()

	if s.debug {
		fmt.Printf("** SDCard read %02X cmd 0x%02X pos %v\n", ret, kind, s.replyPos)
	}

	return word(ret), nil
}

// nextReply produces one reply byte for the completed frame in s.cmd
// and advances the reply cursor. The frame stays active until its last
// reply byte has been delivered.
func (s *SDCard) nextReply() byte {
	var ret byte

	switch s.cmd[0] {
	case CMD0:
		ret = 0x01
		s.finishCommand()
	case CMD16, ACMD41, CMD55:
		ret = 0x00
		s.finishCommand()
	case CMD8:
		ret = cmd8Reply[s.replyPos]
		s.replyPos++
		if s.replyPos == len(cmd8Reply) {
			s.finishCommand()
		}
	case CMD58:
		ret = cmd58Reply[s.replyPos]
		s.replyPos++
		if s.replyPos == len(cmd58Reply) {
			s.finishCommand()
		}
	case CMD17:
		if s.frame == nil {
			s.loadBlockFrame()
		}
		ret = s.frame[s.replyPos]
		s.replyPos++
		if s.replyPos == len(s.frame) {
			s.finishCommand()
		}
	default:
		log.Panicf("unknown SD command type=0x%02X", s.cmd[0])
	}

	return ret
}

// loadBlockFrame services a CMD17: decode the big-endian block number
// from the argument bytes, stall for the media latency, and queue up
// start token, block contents and one trailing byte.
func (s *SDCard) loadBlockFrame() {
	s.blockNo = binary.BigEndian.Uint32(s.cmd[1:5])

	if s.debug {
		fmt.Printf("** SDCard read block %v\n", s.blockNo)
	}

	time.Sleep(s.latency)

	s.frame = make([]byte, 0, BlockSize+2)
	s.frame = append(s.frame, StartToken)
	s.frame = append(s.frame, s.store.readBlock(s.blockNo)...)
	s.frame = append(s.frame, FillerByte) // crc slot, never checked
}

// finishCommand returns the card to the steady between-frames state.
// The card leaves IDLE for good once the first frame has completed;
// the boot ROM expects that quirk.
func (s *SDCard) finishCommand() {
	s.state = READY
	s.cmd = s.cmd[:0]
	s.replyPos = 0
	s.frame = nil
}
