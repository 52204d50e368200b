// Copyright 2024-2025 Sebastian Lederer. See the file LICENSE.md for details
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/eiannone/keyboard"
	"golang.org/x/term"
)

var mem Mem
var sdcard SDCard

const SDSlot = 1

const sdTxAddr = IOStartAddr + SDSlot*IOSlotSize + SPI_TXDATA
const sdRxAddr = IOStartAddr + SDSlot*IOSlotSize + SPI_RXDATA

func sendFrame(opcode byte, arg uint32, crc byte) {
	frame := []byte{opcode, byte(arg >> 24), byte(arg >> 16), byte(arg >> 8), byte(arg), crc}
	for _, b := range frame {
		if err := mem.write(word(b), sdTxAddr); err != nil {
			log.Panic(err)
		}
	}
}

func readReply(count int) []byte {
	buf := make([]byte, count)
	for i := range buf {
		v, err := mem.read(sdRxAddr)
		if err != nil {
			log.Panic(err)
		}
		buf[i] = byte(v)
	}
	return buf
}

// initCard runs the same command sequence the boot ROM uses to bring
// the card out of idle state.
func initCard() {
	steps := []struct {
		name     string
		opcode   byte
		arg      uint32
		crc      byte
		replyLen int
	}{
		{"CMD0", CMD0, 0, 0x95, 1},
		{"CMD8", CMD8, 0x1AA, 0x87, 5},
		{"CMD55", CMD55, 0, 0xFF, 1},
		{"ACMD41", ACMD41, 0x40000000, 0xFF, 1},
		{"CMD58", CMD58, 0, 0xFF, 5},
		{"CMD16", CMD16, BlockSize, 0xFF, 1},
	}

	for _, st := range steps {
		sendFrame(st.opcode, st.arg, st.crc)
		reply := readReply(st.replyLen)
		fmt.Printf("%-6v => % X\n", st.name, reply)
	}
}

// readCardBlock fetches one block through a full CMD17 transaction.
func readCardBlock(no uint32) []byte {
	sendFrame(CMD17, no, 0xFF)
	frame := readReply(BlockSize + 2)
	if frame[0] != StartToken {
		log.Panicf("CMD17 reply for block %v starts with %02X instead of %02X",
			no, frame[0], StartToken)
	}
	return frame[1 : BlockSize+1]
}

func dumpBlock(no uint32, data []byte) {
	fmt.Printf("block %v:\n", no)
	for off := 0; off < len(data); off += 16 {
		line := data[off : off+16]
		fmt.Printf("%08X ", int(no)*BlockSize+off)
		for _, b := range line {
			fmt.Printf(" %02X", b)
		}
		fmt.Printf("  ")
		for _, b := range line {
			if b >= 0x20 && b < 0x7F {
				fmt.Printf("%c", b)
			} else {
				fmt.Printf(".")
			}
		}
		fmt.Println()
	}
}

// browseBlocks pages through the card interactively. Every page shown
// is fetched through a real CMD17 transaction, so this doubles as a
// poor man's protocol exerciser.
func browseBlocks(start uint32) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		log.Panic("browse mode needs a terminal on stdin")
	}

	if err := keyboard.Open(); err != nil {
		log.Panic(err)
	}
	defer keyboard.Close()

	blockNo := start
	for {
		dumpBlock(blockNo, readCardBlock(blockNo))
		fmt.Println("[arrows/PgUp/PgDn move, Home/End jump, q quits]")

		char, key, err := keyboard.GetKey()
		if err != nil {
			log.Panic(err)
		}

		switch {
		case key == keyboard.KeyArrowRight || key == keyboard.KeyArrowDown || key == keyboard.KeyPgdn:
			if blockNo < CardBlocks-1 {
				blockNo++
			}
		case key == keyboard.KeyArrowLeft || key == keyboard.KeyArrowUp || key == keyboard.KeyPgup:
			if blockNo > 0 {
				blockNo--
			}
		case key == keyboard.KeyHome:
			blockNo = 0
		case key == keyboard.KeyEnd:
			blockNo = CardBlocks - 1
		case char == 'q' || key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
			return
		}
	}
}

func main() {
	imgPtr := flag.String("i", "disk.img", "SD card image file")
	blockPtr := flag.Uint("b", 0, "first block to read")
	countPtr := flag.Uint("n", 1, "number of blocks to read")
	debugPtr := flag.Bool("d", false, "trace register accesses")
	browsePtr := flag.Bool("browse", false, "browse blocks interactively")
	flag.Parse()

	log.SetFlags(0)

	sdcard.openImage(*imgPtr)
	sdcard.debug = *debugPtr
	mem.attachIO(&sdcard, SDSlot)

	initCard()

	if *browsePtr {
		browseBlocks(uint32(*blockPtr))
		return
	}

	for i := uint(0); i < *countPtr; i++ {
		no := uint32(*blockPtr + i)
		if no >= CardBlocks {
			break
		}
		dumpBlock(no, readCardBlock(no))
	}
}
