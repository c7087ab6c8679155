/*
Recorder keeps the trading log as a segmented write-ahead log.

# Module
  - writer: asynchronous append to rotating segments
  - reader: checksum verified record decoding
  - playback: ordered replay with optional pacing and filters

# Source
  - ticks from the hub
  - fills from the engine

# Produce
  - backtest history
  - ledger recovery after a snapshot
*/
package recorder
