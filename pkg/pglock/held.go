package pglock

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"gorm.io/gorm"
)

// HeldLock is one advisory lock row of pg_locks in the current database.
type HeldLock struct {
	PID     int64  `json:"pid"`
	Mode    string `json:"mode"`
	Granted bool   `json:"granted"`
	Key     Key    `json:"-"`
	KeyText string `json:"key"`
	Query   string `json:"query,omitempty"`
}

const heldSQL = `SELECT l.pid, l.mode, l.granted,
       l.classid::bigint AS classid, l.objid::bigint AS objid, l.objsubid,
       COALESCE(a.query, '') AS query
FROM pg_locks l
LEFT JOIN pg_stat_activity a ON a.pid = l.pid
WHERE l.locktype = 'advisory'
  AND l.database = (SELECT oid FROM pg_database WHERE datname = current_database())
ORDER BY l.pid, l.classid, l.objid`

type heldRow struct {
	Pid      int64
	Mode     string
	Granted  bool
	Classid  int64
	Objid    int64
	Objsubid int64
	Query    string
}

// Held lists the advisory locks held or awaited in the current database, across all sessions.
func Held(ctx context.Context, db *gorm.DB) ([]HeldLock, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	rows := make([]heldRow, 0)
	if err := db.WithContext(ctx).Raw(heldSQL).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("pglock: list advisory locks: %w", err)
	}
	result := make([]HeldLock, 0, len(rows))
	for _, r := range rows {
		key := decodeKey(r.Classid, r.Objid, r.Objsubid)
		result = append(result, HeldLock{
			PID:     r.Pid,
			Mode:    r.Mode,
			Granted: r.Granted,
			Key:     key,
			KeyText: key.String(),
			Query:   r.Query,
		})
	}
	return result, nil
}

// decodeKey reverses how postgres stores advisory keys in pg_locks: a bigint key is split
// into classid (high half) and objid (low half) with objsubid 1, an int4 pair is stored
// as classid, objid with objsubid 2.
func decodeKey(classid, objid, objsubid int64) Key {
	hi, low := uint32(classid), uint32(objid)
	if objsubid == 2 {
		return Pair{int32(hi), int32(low)}
	}
	return Int(int64(uint64(hi)<<32 | uint64(low)))
}

// Filter keeps the rows that refer to the same lock as key. Text keys match their folded value.
func Filter(held []HeldLock, key Key) []HeldLock {
	return lo.Filter(held, func(h HeldLock, _ int) bool {
		return h.Key != nil && h.Key.args() == key.args()
	})
}
