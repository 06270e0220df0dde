package postgres

import (
	"fmt"

	"github.com/alanyoungcy/updownbet/internal/domain"
)

// listQuery appends optional filters and pagination to a base SELECT whose
// WHERE clause already binds args.
type listQuery struct {
	sql  string
	args []any
}

func newListQuery(base string, args ...any) *listQuery {
	return &listQuery{sql: base, args: args}
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// timeRange filters col by opts.Since/Until. Columns holding unix seconds are
// compared against Unix(); timestamp columns against the time itself.
func (q *listQuery) timeRange(col string, opts domain.ListOpts) {
	q.timeRangeAs(col, opts, true)
}

func (q *listQuery) timeRangeAs(col string, opts domain.ListOpts, unix bool) {
	if opts.Since != nil {
		var v any = *opts.Since
		if unix {
			v = opts.Since.Unix()
		}
		q.sql += " AND " + col + " >= " + q.arg(v)
	}
	if opts.Until != nil {
		var v any = *opts.Until
		if unix {
			v = opts.Until.Unix()
		}
		q.sql += " AND " + col + " <= " + q.arg(v)
	}
}

func (q *listQuery) page(orderBy string, opts domain.ListOpts) {
	q.sql += " ORDER BY " + orderBy
	if opts.Limit > 0 {
		q.sql += " LIMIT " + q.arg(opts.Limit)
	}
	if opts.Offset > 0 {
		q.sql += " OFFSET " + q.arg(opts.Offset)
	}
}
