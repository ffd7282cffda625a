package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/joseph-ayodele/xmm-lightcurves/constants"
	"github.com/joseph-ayodele/xmm-lightcurves/internal/common"
)

// Roles in the order products are produced.
var Roles = []constants.Role{constants.RoleSource, constants.RoleBackground, constants.RoleCorrected}

// Product is the outcome of one (object, role) light curve.
type Product struct {
	Status constants.ProductStatus
	Path   string
	Err    error
}

// ObjectOutcome holds the products of one object.
type ObjectOutcome struct {
	ObjectID string
	Products map[constants.Role]*Product
}

func newObjectOutcome(id string) *ObjectOutcome {
	o := &ObjectOutcome{ObjectID: id, Products: make(map[constants.Role]*Product, len(Roles))}
	for _, r := range Roles {
		o.Products[r] = &Product{Status: constants.ProductPending}
	}
	return o
}

func (o *ObjectOutcome) Status(role constants.Role) constants.ProductStatus {
	if p, ok := o.Products[role]; ok {
		return p.Status
	}
	return constants.ProductPending
}

func (o *ObjectOutcome) ok(role constants.Role, path string) {
	o.Products[role] = &Product{Status: constants.ProductSucceeded, Path: path}
}

func (o *ObjectOutcome) fail(role constants.Role, err error) {
	o.Products[role] = &Product{Status: constants.ProductFailed, Err: err}
}

func (o *ObjectOutcome) skip(role constants.Role, err error) {
	o.Products[role] = &Product{Status: constants.ProductSkipped, Err: err}
}

// Report is the per-observation result. Completed is true when every stage
// ran; individual products may still have failed.
type Report struct {
	ObsID     string
	Completed bool
	Objects   map[string]*ObjectOutcome
	Warnings  []string
	Elapsed   time.Duration

	mu sync.Mutex
}

func NewReport(obsID string) *Report {
	return &Report{ObsID: obsID, Objects: map[string]*ObjectOutcome{}}
}

func (r *Report) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) object(id string) *ObjectOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.Objects[id]
	if !ok {
		o = newObjectOutcome(id)
		r.Objects[id] = o
	}
	return o
}

// ObjectIDs returns the object ids in lexical order.
func (r *Report) ObjectIDs() []string {
	ids := make([]string, 0, len(r.Objects))
	for id := range r.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns how many products across all objects have status s.
func (r *Report) Count(s constants.ProductStatus) int {
	n := 0
	for _, o := range r.Objects {
		for _, p := range o.Products {
			if p.Status == s {
				n++
			}
		}
	}
	return n
}

// PartialFailure names one failed product of a completed observation.
type PartialFailure struct {
	ObjectID string
	Role     constants.Role
	Kind     string
	Err      error
}

func (f PartialFailure) String() string {
	return fmt.Sprintf("%s/%s: %s: %v", f.ObjectID, f.Role, f.Kind, f.Err)
}

// PartialFailures lists failed products in object then role order.
func (r *Report) PartialFailures() []PartialFailure {
	var out []PartialFailure
	for _, id := range r.ObjectIDs() {
		o := r.Objects[id]
		for _, role := range Roles {
			p := o.Products[role]
			if p != nil && p.Status == constants.ProductFailed {
				out = append(out, PartialFailure{ObjectID: id, Role: role, Kind: common.Kind(p.Err), Err: p.Err})
			}
		}
	}
	return out
}
