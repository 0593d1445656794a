package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sidequest-dev/foreman/pkg/build"
)

// RecordServerInfo records server metadata as an info metric.
// This metric is best effort: if it fails, a warning is logged and the
// process continues.
func RecordServerInfo(ctx context.Context, extraAttrs ...attribute.KeyValue) {
	info, err := Global().NewInfo(InfoConfig{
		Name:        "foreman_server_info",
		Description: "Build and runtime information about the foreman server",
	})
	if err != nil {
		log.Warnw("failed to initialize foreman server info metric", "error", err)
		return
	}

	attrs := []attribute.KeyValue{
		StringAttr("version", build.Version),
		StringAttr("commit", build.Commit),
		StringAttr("built_by", build.BuiltBy),
		StringAttr("build_date", build.Date),
		Int64Attr("start_time_unix", time.Now().Unix()),
	}
	attrs = append(attrs, extraAttrs...)

	info.Record(ctx, attrs...)
}
