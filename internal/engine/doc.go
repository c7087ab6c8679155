/*
Engine implements the per-tick trading decision flow.

# Module
  - forced exits: stop loss and take profit on the held position override the strategy
  - strategy: invoked through its fault boundary, a panic or error is a HOLD
  - risk: admission of the order before it leaves the engine
  - executor: rate limited, idempotent submission to the simulated or live venue
  - ledger: books fills, realizes PnL, feeds the circuit breaker

# Source
 1. ticks from the hub, one worker per instrument
 2. venue fill reports from the hub (live mode)
 3. tick series from the backtest runner

# Produce
  - orders, fills and trades to the repository and the listeners

# Sharded
  - instrument
*/
package engine
