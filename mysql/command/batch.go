package command

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/takapi327/ldbc/mysql/resultset"
	"github.com/takapi327/ldbc/mysql/wire"
)

// BatchResult aggregates the outcome of executing many parameter sets
// against one prepared statement (§4.5 batch execution).
type BatchResult struct {
	TotalAffectedRows uint64
	LastInsertID      uint64
	PerStatement      []uint64
}

// ExecuteBatch runs stmt once per entry of paramSets, issuing
// COM_STMT_EXECUTE for each and folding the affected-row counts together.
// The new-params-bound flag is set on the first execution and on any row
// whose parameter types (derived from its Go values, nil binding as NULL)
// differ from the previous row's; other rows send their values without
// resending type information.
func ExecuteBatch(c *wire.Conn, caps wire.Capability, stmt *PreparedStatement, paramSets [][]any, behavior resultset.ZeroDateBehavior) (*BatchResult, error) {
	result := &BatchResult{PerStatement: make([]uint64, len(paramSets))}
	var prevTypes []byte
	for i, params := range paramSets {
		types := make([]byte, 0, 2*len(params))
		for _, v := range params {
			typ, unsigned := binaryParamType(v)
			types = append(types, byte(typ))
			if unsigned {
				types = append(types, 0x80)
			} else {
				types = append(types, 0x00)
			}
		}
		bound := i == 0 || !bytes.Equal(types, prevTypes)
		prevTypes = types
		res, err := Execute(c, caps, stmt, params, bound, behavior)
		if err != nil {
			return nil, fmt.Errorf("mysql: batch execute row %d: %w", i, err)
		}
		if res.OK == nil {
			return nil, fmt.Errorf("mysql: batch execute row %d returned a result set, not an OK", i)
		}
		result.PerStatement[i] = res.OK.AffectedRows
		result.TotalAffectedRows += res.OK.AffectedRows
		if res.OK.LastInsertID != 0 {
			result.LastInsertID = res.OK.LastInsertID
		}
	}
	return result, nil
}

// RewriteBatchedStatements folds a slice of "VALUES (...)" clauses sharing
// the same insertPrefix (e.g. "INSERT INTO t (a, b) VALUES") into one
// multi-row INSERT statement text, suitable for a single COM_QUERY. This
// trades per-row round trips for one larger statement, mirroring the
// rewriteBatchedStatements connector option (§4.5).
func RewriteBatchedStatements(insertPrefix string, valueClauses []string) string {
	if len(valueClauses) == 0 {
		return insertPrefix
	}
	var b strings.Builder
	b.WriteString(insertPrefix)
	b.WriteByte(' ')
	b.WriteString(strings.Join(valueClauses, ", "))
	return b.String()
}
