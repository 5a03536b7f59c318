package port

import (
	"context"
	"time"
)

// ExportStorage archives collection results to object storage.
type ExportStorage interface {
	// StoreDailyExport uploads a JSON document under the date-partitioned
	// export prefix and returns the object key.
	StoreDailyExport(ctx context.Context, date time.Time, payload []byte) (string, error)
}
