package protocol

// CRC16 is the block checksum: CCITT polynomial, reflected, initial value
// 0xFFFF, no final xor (CRC-16/MCRF4XX).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}

// appendCRC appends the big-endian checksum of block and the sync byte.
func appendCRC(block []byte) []byte {
	crc := CRC16(block)
	return append(block, byte(crc>>8), byte(crc), MessageValueSync)
}
