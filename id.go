package chainledger

import "github.com/xraph/chainledger/id"

// RunID identifies node-local work such as a block application or a
// checkpoint. It never names a chain object.
type RunID = id.ID

// RunPrefix identifies the run type encoded in a RunID.
type RunPrefix = id.Prefix
