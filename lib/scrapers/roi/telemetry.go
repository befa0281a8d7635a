package roi

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("scrapers/roi")
