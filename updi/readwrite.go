package updi

// ReadWrite exposes byte/word vector read and write on top of a DataLink,
// choosing between a direct single transfer and a REPEAT+auto-increment
// burst depending on size, and chunking bursts over 256 units.
type ReadWrite struct {
	dl *DataLink
}

// NewReadWrite builds a ReadWrite over dl.
func NewReadWrite(dl *DataLink) *ReadWrite {
	return &ReadWrite{dl: dl}
}

func (rw *ReadWrite) readCS(index byte) (byte, error) {
	return rw.dl.ldcs(index)
}

func (rw *ReadWrite) writeCS(index, value byte) error {
	return rw.dl.stcs(index, value)
}

func (rw *ReadWrite) writeKey(sizeCode byte, key []byte) error {
	return rw.dl.key(sizeCode, key)
}

func (rw *ReadWrite) readSIB() ([]byte, error) {
	return rw.dl.readSIB()
}

func (rw *ReadWrite) readByte(address uint32) (byte, error) {
	return rw.dl.ld(address)
}

func (rw *ReadWrite) writeByte(address uint32, value byte) error {
	return rw.dl.st(address, value)
}

// readData reads size bytes starting at address, splitting bursts larger
// than MaxRepeatUnits into successive chunks.
func (rw *ReadWrite) readData(address uint32, size int) ([]byte, error) {
	if size == 1 {
		b, err := rw.dl.ld(address)
		if err != nil {
			return nil, err
		}
		return []byte{b}, nil
	}

	out := make([]byte, 0, size)
	for size > 0 {
		chunk := size
		if chunk > MaxRepeatUnits {
			chunk = MaxRepeatUnits
		}
		if err := rw.dl.stPtr(address); err != nil {
			return nil, err
		}
		if err := rw.dl.repeat(chunk); err != nil {
			return nil, err
		}
		got, err := rw.dl.ldPtrInc(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
		address += uint32(chunk)
		size -= chunk
	}
	return out, nil
}

// readDataWords reads `words` 16-bit words starting at address, returning
// 2*words bytes, splitting bursts larger than MaxRepeatUnits/2 words into
// successive chunks.
func (rw *ReadWrite) readDataWords(address uint32, words int) ([]byte, error) {
	out := make([]byte, 0, words*2)
	for words > 0 {
		chunk := words
		if chunk > MaxRepeatUnits/2 {
			chunk = MaxRepeatUnits / 2
		}
		if err := rw.dl.stPtr(address); err != nil {
			return nil, err
		}
		if chunk > 1 {
			if err := rw.dl.repeat(chunk); err != nil {
				return nil, err
			}
		}
		got, err := rw.dl.ldPtrInc16(chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
		address += uint32(chunk) * 2
		words -= chunk
	}
	return out, nil
}

// writeDataWords writes data (an even-length byte slice of word pairs)
// starting at address, splitting bursts larger than MaxRepeatUnits*2
// bytes into successive chunks.
func (rw *ReadWrite) writeDataWords(address uint32, data []byte) error {
	numBytes := len(data)
	if numBytes == 2 {
		return rw.dl.st16(address, uint16(data[0])|uint16(data[1])<<8)
	}

	index := 0
	for numBytes > 0 {
		chunk := numBytes
		if chunk > MaxRepeatUnits*2 {
			chunk = MaxRepeatUnits * 2
		}
		if err := rw.dl.stPtr(address); err != nil {
			return err
		}
		if err := rw.dl.repeat(chunk / 2); err != nil {
			return err
		}
		if err := rw.dl.stPtrInc16(data[index : index+chunk]); err != nil {
			return err
		}
		index += chunk
		address += uint32(chunk)
		numBytes -= chunk
	}
	return nil
}

// writeData writes data (arbitrary length) starting at address, splitting
// bursts larger than MaxRepeatUnits into successive chunks.
func (rw *ReadWrite) writeData(address uint32, data []byte) error {
	numBytes := len(data)
	if numBytes == 1 {
		return rw.dl.st(address, data[0])
	}
	if numBytes == 2 {
		if err := rw.dl.st(address, data[0]); err != nil {
			return err
		}
		return rw.dl.st(address+1, data[1])
	}

	index := 0
	for numBytes > 0 {
		chunk := numBytes
		if chunk > MaxRepeatUnits {
			chunk = MaxRepeatUnits
		}
		if err := rw.dl.stPtr(address); err != nil {
			return err
		}
		if err := rw.dl.repeat(chunk); err != nil {
			return err
		}
		if err := rw.dl.stPtrInc(data[index : index+chunk]); err != nil {
			return err
		}
		index += chunk
		address += uint32(chunk)
		numBytes -= chunk
	}
	return nil
}
