package middleware

import "github.com/aretw0/revisit/pkg/ports"

// Middleware allows wrapping a ModelStore to add behavior.
type Middleware func(ports.ModelStore) ports.ModelStore

// Chain applies mws to store; the first middleware is the outermost.
func Chain(store ports.ModelStore, mws ...Middleware) ports.ModelStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

// ExportFields are the fields holding participant data.
var ExportFields = []ports.Field{ports.FieldExportJSON, ports.FieldExportTidy}

func fieldSet(fields []ports.Field) map[ports.Field]bool {
	if len(fields) == 0 {
		fields = ExportFields
	}
	set := make(map[ports.Field]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}
