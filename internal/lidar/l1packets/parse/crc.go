package parse

// crcTable is the CRC-8 lookup table for polynomial 0x4D, MSB first.
var crcTable = func() (t [256]byte) {
	for i := range t {
		c := byte(i)
		for bit := 0; bit < 8; bit++ {
			if c&0x80 != 0 {
				c = c<<1 ^ 0x4D
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}()

// CRC8 returns the frame checksum of data.
func CRC8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc = crcTable[crc^b]
	}
	return crc
}
