// Package l1packets owns Layer 1 (Packets) of the LiDAR data model.
//
// Responsibilities: serial ingestion, PCAP replay, and low-level byte
// parsing of LD-series sensor frames. This layer produces raw points
// consumed by L2 (Frames).
//
// Subpackages:
//   - parse: 47-byte frame decoding, CRC checks and stream resync
//   - serialport: live ingestion from a serial port
//   - network: frames forwarded over UDP, live or replayed from PCAP captures
//
// Dependency rule: L1 has no inward dependencies on higher layers, apart
// from the shared nearfilter.Point value type.
package l1packets
