package stick

import liberr "github.com/Megallm/ultrabalancer-sub000/errors"

// ErrTableFull is returned by GetOrCreate when a bucket is at capacity
// and every entry in it is still referenced by a live connection. A full
// table with no evictable entry is a hard error, not a silent drop.
var ErrTableFull = liberr.ErrCodeStickyTableFull.Error(nil)
