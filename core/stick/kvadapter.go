package stick

import (
	libkvd "github.com/Megallm/ultrabalancer-sub000/database/kvdriver"
	libkvt "github.com/Megallm/ultrabalancer-sub000/database/kvtable"
)

// Record is the read-only projection of an Entry exposed through the
// generic kvtable walk interface, for the stats exporter and any future
// debug endpoint — the forwarder's hot path never goes through this.
type Record struct {
	BackendID uint32
	Refs      int64
	Rate      int64
}

// KVView wraps a Table behind the generic KVTable[K, M] interface so a
// stats sink can List/Walk sticky entries with the same
// driver-indirection pattern used elsewhere in the database package,
// without the hot path paying for it.
func (t *Table) KVView() libkvt.KVTable[string, Record] {
	drv := libkvd.New[string, Record](
		nil, // FctNew: this driver is always bound to an existing Table
		func(key string) (Record, error) {
			e, ok := t.Get(key)
			if !ok {
				return Record{}, ErrTableFull
			}
			return Record{BackendID: e.BackendID, Refs: e.Refs(), Rate: e.rate.Load()}, nil
		},
		func(key string, model Record) error {
			// Read-only view: Set is a no-op success so callers using the
			// generic KVItem.Load()/Store() round trip don't error out on
			// a view they never intend to persist through.
			return nil
		},
		func(key string) error { return nil },
		func() ([]string, error) {
			var keys []string
			t.Walk(func(key string, _ uint32, _, _ int64) bool {
				keys = append(keys, key)
				return true
			})
			return keys, nil
		},
		nil, // FctWalk: kvtable.Walk falls back to List+Get when nil
	)
	return libkvt.New[string, Record](drv)
}
