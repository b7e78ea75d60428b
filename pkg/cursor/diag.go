package cursor

import (
	"log"

	"github.com/umputun/rowbatch/pkg/backend"
)

// Diagnose fetches the first diagnostic record of a handle. It returns nil when the backend has
// nothing to report, for example because the handle is already invalid. It never retries.
func Diagnose(drv backend.Driver, kind backend.HandleKind, h backend.Handle) *backend.DiagRecord {
	rec, ret := drv.DiagRec(kind, h, 1)
	if !ret.Succeeded() {
		return nil
	}
	return &rec
}

// check turns a backend return code into an error. NoData is not a failure here, callers that care
// about it look at the code themselves.
func check(drv backend.Driver, op string, ret backend.Return, kind backend.HandleKind, h backend.Handle) error {
	if ret.Succeeded() || ret == backend.NoData {
		return nil
	}
	e := &BackendError{Op: op, Return: ret, Diag: Diagnose(drv, kind, h)}
	log.Printf("[DEBUG] backend call %s on %s %d: %v", op, kind, h, e)
	return e
}
