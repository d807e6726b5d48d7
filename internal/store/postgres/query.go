package postgres

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// listQuery appends the time window, ordering and paging of opts to base.
// base must already contain a WHERE clause.
func listQuery(base, timeCol string, opts domain.ListOpts) (string, []any) {
	var sb strings.Builder
	sb.WriteString(base)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if opts.Since != nil {
		fmt.Fprintf(&sb, " AND %s >= %s", timeCol, arg(*opts.Since))
	}
	if opts.Until != nil {
		fmt.Fprintf(&sb, " AND %s <= %s", timeCol, arg(*opts.Until))
	}
	fmt.Fprintf(&sb, " ORDER BY %s DESC", timeCol)
	if opts.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %s", arg(opts.Limit))
	}
	if opts.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %s", arg(opts.Offset))
	}
	return sb.String(), args
}
