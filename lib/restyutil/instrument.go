package restyutil

import (
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

type InstrumentOutput interface {
	Write(id string, contents string)
}

// InstrumentClient records every request/response pair the client makes
// to output, numbered in request order. Selector changes upstream are
// much easier to diagnose from the captured pages than from extraction
// results alone. A nil output makes this a no-op.
//
// Tracing spans are not created here; that belongs to
// telemetry.InstrumentResty.
func InstrumentClient(client *resty.Client, output InstrumentOutput) {
	if output == nil {
		return
	}

	var idcounter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := strconv.FormatUint(atomic.AddUint64(&idcounter, 1), 10)
		output.Write(id, formatHttpMessage(res))
		slog.DebugContext(
			res.Request.Context(), "recorded page",
			"method", res.Request.Method,
			"url", res.Request.URL,
			"id", id,
		)
		return nil
	})
}
