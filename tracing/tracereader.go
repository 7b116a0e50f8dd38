package tracing

import (
	"context"
	"fmt"

	"github.com/sarchlab/wavefreq/datarecording"
)

// TraceReader reads back the tables written by a DBTracer.
type TraceReader struct {
	r datarecording.DataReader
}

// NewTraceReader maps the dispatch and job tables of r.
func NewTraceReader(r datarecording.DataReader) (*TraceReader, error) {
	if err := r.MapTable(DispatchTable, DispatchRow{}); err != nil {
		return nil, err
	}

	if err := r.MapTable(JobTable, JobRow{}); err != nil {
		return nil, err
	}

	return &TraceReader{r: r}, nil
}

// Dispatches returns every recorded dispatch in start order.
func (t *TraceReader) Dispatches(ctx context.Context) ([]DispatchRow, error) {
	rows, _, err := t.r.Query(ctx, DispatchTable, datarecording.QueryParams{
		OrderBy: "StartTime, DispatchID",
	})
	if err != nil {
		return nil, err
	}

	return rowsAs[DispatchRow](rows)
}

// JobQuery narrows Jobs.
type JobQuery struct {
	// DispatchID selects the jobs of one dispatch. Empty selects all.
	DispatchID string

	// FailedOnly keeps the jobs that recorded an error.
	FailedOnly bool
}

// Jobs returns the recorded jobs matching q, ordered by dispatch and index.
// Dispatch IDs sort in creation order.
func (t *TraceReader) Jobs(ctx context.Context, q JobQuery) ([]JobRow, error) {
	var params datarecording.QueryParams

	where := ""
	if q.DispatchID != "" {
		where = "DispatchID = ?"
		params.Args = append(params.Args, q.DispatchID)
	}

	if q.FailedOnly {
		if where != "" {
			where += " AND "
		}
		where += "Err != ''"
	}

	params.Where = where
	params.OrderBy = "DispatchID, JobIndex"

	rows, _, err := t.r.Query(ctx, JobTable, params)
	if err != nil {
		return nil, err
	}

	return rowsAs[JobRow](rows)
}

func rowsAs[T any](rows []any) ([]T, error) {
	out := make([]T, 0, len(rows))

	for _, row := range rows {
		v, ok := row.(*T)
		if !ok {
			return nil, fmt.Errorf("tracing: unexpected row type %T", row)
		}

		out = append(out, *v)
	}

	return out, nil
}
