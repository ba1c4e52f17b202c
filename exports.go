package chainledger

import "github.com/xraph/chainledger/types"

// Re-export common types for convenience so users don't have to import types package.

// Asset is re-exported from types package.
type Asset = types.Asset

// Timestamp is re-exported from types package.
type Timestamp = types.Timestamp

// PublicKey is re-exported from types package.
type PublicKey = types.PublicKey

// Authority is re-exported from types package.
type Authority = types.Authority

// Re-export Asset constructors
var (
	Golos      = types.Golos
	GBGs       = types.GBGs
	Vests      = types.Vests
	Zero       = types.Zero
	Sum        = types.Sum
	ParseAsset = types.ParseAsset
)

// Re-export key and authority constructors
var (
	ParsePublicKey  = types.ParsePublicKey
	NewKeyAuthority = types.NewKeyAuthority
	TimestampOf     = types.TimestampOf
)
