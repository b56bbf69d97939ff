// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package loader places ELF32 RISC-V executables into emulator memory.
package loader

import (
	"debug/elf"
	"io"
	"log"
	"os"

	"github.com/ezrec/rv32i/memory"
)

// Loader places ELF images into a memory manager.
type Loader struct {
	Verbose bool // If set, logs every loaded segment.
}

// Check validates the identification of an ELF image.
func Check(ef *elf.File) (err error) {
	switch {
	case ef.Class != elf.ELFCLASS32:
		err = wrapf(ErrElfClass, "%v", ef.Class)
	case ef.Data != elf.ELFDATA2LSB:
		err = wrapf(ErrElfData, "%v", ef.Data)
	case ef.Machine != elf.EM_RISCV:
		err = wrapf(ErrElfMachine, "%v", ef.Machine)
	}

	return
}

// Load places every PT_LOAD segment of an ELF32 RISC-V image at its
// mapped address, zero filling each segment past its file bytes. The
// returned entry point is mapped the same way.
func (ld *Loader) Load(r io.ReaderAt, mm *memory.Manager) (entry uint32, err error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return
	}
	defer ef.Close()

	err = Check(ef)
	if err != nil {
		return
	}

	for n, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}

		vaddr := uint32(prog.Vaddr)
		address := memory.MapAddress(vaddr)

		err = loadSegment(prog, address, mm)
		if err != nil {
			err = &ErrSegment{Index: n, Vaddr: vaddr, Address: address, Err: err}
			return
		}

		if ld.Verbose {
			log.Printf("loader: segment %d 0x%08x -> 0x%08x (%d/%d bytes)", n, vaddr, address, prog.Filesz, prog.Memsz)
		}
	}

	entry = memory.MapAddress(uint32(ef.Entry))
	return
}

func loadSegment(prog *elf.Prog, address uint32, mm *memory.Manager) (err error) {
	if prog.Filesz > prog.Memsz {
		err = ErrElfSegment
		return
	}

	if prog.Memsz > memory.MEMORY_SIZE {
		err = wrapf(ErrElfTooLarge, "%d", prog.Memsz)
		return
	}

	data := make([]byte, prog.Memsz)
	_, err = prog.ReadAt(data[:prog.Filesz], 0)
	if err != nil {
		return
	}

	err = mm.LoadSegment(address, data)
	return
}

// LoadFile loads the ELF executable at path.
func (ld *Loader) LoadFile(path string, mm *memory.Manager) (entry uint32, err error) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	return ld.Load(file, mm)
}
