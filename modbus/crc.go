package modbus

// CRC16 returns the Modbus RTU checksum of data: reflected polynomial
// 0xA001, initial value 0xFFFF. It is transmitted low byte first.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}

	return crc
}

func appendCRC(dst []byte, crc uint16) []byte {
	return append(dst, byte(crc), byte(crc>>8))
}
