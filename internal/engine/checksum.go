package engine

import "hash/crc32"

// checksum uses the reflected IEEE 802.3 polynomial (0xEDB88320), the same
// table the standard library builds for crc32.IEEE. It is used over pages,
// WAL records, and the file header — one table, computed once at package
// init, never rebuilt per call.
var crcTable = crc32.MakeTable(crc32.IEEE)

// checksumBytes returns the CRC32 (IEEE, init/final XOR 0xFFFFFFFF — the
// standard construction) of data.
func checksumBytes(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}
