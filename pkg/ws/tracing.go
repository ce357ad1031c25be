package ws

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "github.com/LLIEPJIOK/service-mesh/relay"

// defaultTracer берёт трассировщик из глобального провайдера;
// пока провайдер не настроен, спаны ничего не стоят.
func defaultTracer() trace.Tracer {
	return otel.Tracer(defaultTracerName)
}
